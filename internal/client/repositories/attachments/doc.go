// Package attachments persists attachment records in SQLite. A record is a
// row in attachment_records plus its ordered rows in attachments; writes
// replace both inside one transaction.
package attachments
