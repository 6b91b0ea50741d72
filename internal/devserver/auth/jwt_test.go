package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	tok, err := GenerateToken("tablet-7", secret, time.Hour)
	require.NoError(t, err)

	got, err := DeviceFromToken(tok, secret)
	require.NoError(t, err)
	require.Equal(t, "tablet-7", got)
}

func TestGenerate_ZeroValidityNeverExpires(t *testing.T) {
	t.Parallel()

	secret := []byte("s")
	tok, err := GenerateToken("d1", secret, 0)
	require.NoError(t, err)

	got, err := DeviceFromToken(tok, secret)
	require.NoError(t, err)
	require.Equal(t, "d1", got)
}

func TestDeviceFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken("d1", secret, -time.Second)
	require.NoError(t, err)

	_, err = DeviceFromToken(tok, secret)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestDeviceFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("d2", []byte("right-secret"), time.Hour)
	require.NoError(t, err)

	_, err = DeviceFromToken(tok, []byte("wrong-secret"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDeviceFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{DeviceID: "d3"}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = DeviceFromToken(tok, []byte("k"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDeviceFromToken_MissingDevice(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = DeviceFromToken(tok, []byte("k"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDeviceFromToken_Garbage(t *testing.T) {
	t.Parallel()

	_, err := DeviceFromToken("not-a-jwt", []byte("k"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}
