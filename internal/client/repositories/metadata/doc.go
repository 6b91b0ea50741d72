// Package metadata keeps small pieces of client state that do not deserve
// their own schema, grouped by namespace. Presented notification ids live
// here under the persistent dedup policy.
package metadata
