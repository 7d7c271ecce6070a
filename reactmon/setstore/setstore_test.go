package setstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSetStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemSetStore()

	ok, err := s.InSet(ctx, SetBotAdmins, "u1")
	assert.NoError(err)
	assert.False(ok)

	s.Add(SetBotAdmins, "u1", "u2")
	ok, err = s.InSet(ctx, SetBotAdmins, "u1")
	assert.NoError(err)
	assert.True(ok)
	assert.False(s.Has(SetIgnoredChannels, "u1"))
	assert.Equal(map[string]bool{"u1": true, "u2": true}, s.Members(SetBotAdmins))
	assert.Nil(s.Members("missing"))

	require.NoError(t, s.LoadJSON(strings.NewReader(`{"ignored-channels": ["c1"]}`)))
	assert.True(s.Has(SetIgnoredChannels, "c1"))
	assert.True(s.Has(SetBotAdmins, "u2"))

	assert.Error(s.LoadJSON(strings.NewReader(`["not", "an", "object"]`)))
}

func TestLoadFromFileJSON(t *testing.T) {
	assert := assert.New(t)
	p := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"bot-admins": ["u9"]}`), 0o644))

	s := NewMemSetStore()
	s.Add(SetBotAdmins, "u1")
	require.NoError(t, s.LoadFromFileJSON(p))
	// replaced, not merged
	assert.Equal(map[string]bool{"u9": true}, s.Members(SetBotAdmins))

	assert.Error(s.LoadFromFileJSON(filepath.Join(t.TempDir(), "nope.json")))
}
