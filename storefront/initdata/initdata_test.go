package initdata

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "123456:TEST-token"

func TestSignAndValidate(t *testing.T) {
	s, err := NewSigner(token)
	require.NoError(t, err)
	fixed := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return fixed }

	raw, err := s.Sign(Data{User: User{ID: 42, FirstName: "Ada", Username: "ada"}, ChatType: "private"})
	require.NoError(t, err)

	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", values.Get("auth_date"))
	assert.NotEmpty(t, values.Get("hash"))

	d, err := Validate(token, raw, time.Hour, fixed.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(42), d.User.ID)
	assert.Equal(t, "Ada", d.User.FirstName)
	assert.Equal(t, "private", d.ChatType)
	assert.True(t, d.AuthDate.Equal(fixed))
}

func TestValidateRejectsTampering(t *testing.T) {
	s, err := NewSigner(token)
	require.NoError(t, err)
	raw, err := s.Sign(Data{User: User{ID: 1, FirstName: "A"}})
	require.NoError(t, err)

	values, _ := url.ParseQuery(raw)
	values.Set("user", `{"id":2,"first_name":"B"}`)
	_, err = Validate(token, values.Encode(), 0, time.Now())
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = Validate("other:token", raw, 0, time.Now())
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	values.Del("hash")
	_, err = Validate(token, values.Encode(), 0, time.Now())
	assert.ErrorIs(t, err, ErrMissingHash)
}

func TestValidateExpiry(t *testing.T) {
	s, err := NewSigner(token)
	require.NoError(t, err)
	issued := time.Unix(1_700_000_000, 0)
	raw, err := s.Sign(Data{User: User{ID: 1}, AuthDate: issued})
	require.NoError(t, err)

	_, err = Validate(token, raw, time.Hour, issued.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSignRequiresUser(t *testing.T) {
	_, err := NewSigner(" ")
	require.Error(t, err)

	s, err := NewSigner(token)
	require.NoError(t, err)
	_, err = s.Sign(Data{})
	require.Error(t, err)
}
