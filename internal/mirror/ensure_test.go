package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurer_CreatesPrefixesInOrder(t *testing.T) {
	fake := newFakeRemote()
	session := &fakeSession{remote: fake}

	require.NoError(t, NewEnsurer().Ensure(session, "a/b/c"))
	assert.Equal(t, []string{"mkdir a", "mkdir a/b", "mkdir a/b/c"}, fake.opsSnapshot())
}

func TestEnsurer_Idempotent(t *testing.T) {
	fake := newFakeRemote()
	session := &fakeSession{remote: fake}

	require.NoError(t, NewEnsurer().Ensure(session, "a/b"))
	// 新的 Ensurer 没有缓存，会重新发送 MKD 并收到"已存在"
	require.NoError(t, NewEnsurer().Ensure(session, "a/b"))

	e := NewEnsurer()
	require.NoError(t, e.Ensure(session, "a/b"))
	require.NoError(t, e.Ensure(session, "a/b"))

	assert.Equal(t, []string{"mkdir a", "mkdir a/b"}, fake.opsSnapshot())
}

func TestEnsurer_SkipsCachedPrefixes(t *testing.T) {
	fake := newFakeRemote()
	calls := 0
	session := &countingSession{fakeSession: &fakeSession{remote: fake}, mkdirs: &calls}

	e := NewEnsurer()
	require.NoError(t, e.Ensure(session, "a/b"))
	require.NoError(t, e.Ensure(session, "a/c"))
	assert.Equal(t, 3, calls, "a is only sent once")
}

func TestEnsurer_NoopOnRoot(t *testing.T) {
	fake := newFakeRemote()
	session := &fakeSession{remote: fake}

	for _, dir := range []string{"", ".", "/"} {
		require.NoError(t, NewEnsurer().Ensure(session, dir))
	}
	assert.Empty(t, fake.opsSnapshot())
}

func TestEnsurer_StopsAtFirstFailure(t *testing.T) {
	fake := newFakeRemote()
	fake.denyMkdir["a/b"] = true
	session := &fakeSession{remote: fake}

	err := NewEnsurer().Ensure(session, "a/b/c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a/b")
	assert.Equal(t, []string{"mkdir a"}, fake.opsSnapshot())
}

type countingSession struct {
	*fakeSession
	mkdirs *int
}

func (s *countingSession) MakeDir(p string) error {
	*s.mkdirs++
	return s.fakeSession.MakeDir(p)
}
