package readstate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gh-presence/internal/domain"
	"gh-presence/internal/localstore"
)

type failingStore struct {
	localstore.Store
	getErr error
	setErr error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func newTestTracker(t *testing.T, store localstore.Store) *Tracker {
	t.Helper()
	tr, err := NewTracker(store)
	require.NoError(t, err)
	return tr
}

var (
	fp3 = domain.Fingerprint{UpdatedAt: "2024-01-01T00:00:00Z", Comments: "3 comments"}
	fp4 = domain.Fingerprint{UpdatedAt: "2024-01-01T00:00:00Z", Comments: "4 comments"}
)

func TestNewTracker_Validates(t *testing.T) {
	_, err := NewTracker(nil)
	require.Error(t, err)

	_, err = NewTracker(localstore.NewMemory().View(), WithKey(""))
	require.Error(t, err)
}

func TestToggle_MarksAndUnmarks(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, localstore.NewMemory().View())

	require.False(t, tr.IsRead(ctx, "42", fp3))

	read, err := tr.Toggle(ctx, "42", fp3)
	require.NoError(t, err)
	require.True(t, read)
	require.True(t, tr.IsRead(ctx, "42", fp3))

	read, err = tr.Toggle(ctx, "42", fp3)
	require.NoError(t, err)
	require.False(t, read)
	require.False(t, tr.IsRead(ctx, "42", fp3))
	require.Empty(t, tr.Marks(ctx))
}

func TestIsRead_NewCommentInvalidatesMark(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, localstore.NewMemory().View())

	_, err := tr.Toggle(ctx, "42", fp3)
	require.NoError(t, err)
	require.True(t, tr.IsRead(ctx, "42", fp3))
	require.False(t, tr.IsRead(ctx, "42", fp4))
}

func TestToggle_StaleMarkIsReplaced(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, localstore.NewMemory().View())

	_, err := tr.Toggle(ctx, "42", fp3)
	require.NoError(t, err)

	// The item changed: toggling marks it read at the new fingerprint.
	read, err := tr.Toggle(ctx, "42", fp4)
	require.NoError(t, err)
	require.True(t, read)
	require.Equal(t, map[string]string{"42": fp4.String()}, tr.Marks(ctx))
}

func TestIsRead_TimestampOnlyMarks(t *testing.T) {
	ctx := context.Background()
	view := localstore.NewMemory().View()
	require.NoError(t, view.Set(ctx, DefaultKey, []byte(`{"7":"2024-01-01T00:00:00Z"}`)))
	tr := newTestTracker(t, view)

	require.True(t, tr.IsRead(ctx, "7", domain.Fingerprint{UpdatedAt: "2024-01-01T00:00:00Z"}))
	require.False(t, tr.IsRead(ctx, "7", fp3))
}

func TestMarks_MalformedStorageIsEmpty(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{`not-json`, `null`, `[1,2]`} {
		view := localstore.NewMemory().View()
		require.NoError(t, view.Set(ctx, DefaultKey, []byte(raw)))
		tr := newTestTracker(t, view)

		require.Empty(t, tr.Marks(ctx), raw)
		read, err := tr.Toggle(ctx, "1", fp3)
		require.NoError(t, err)
		require.True(t, read)
		require.Equal(t, map[string]string{"1": fp3.String()}, tr.Marks(ctx))
	}
}

func TestToggle_SkipsUnidentifiableItems(t *testing.T) {
	ctx := context.Background()
	view := localstore.NewMemory().View()
	tr := newTestTracker(t, view)

	read, err := tr.Toggle(ctx, "", fp3)
	require.NoError(t, err)
	require.False(t, read)

	read, err = tr.Toggle(ctx, "1", domain.Fingerprint{Comments: "1 comment"})
	require.NoError(t, err)
	require.False(t, read)

	_, ok, err := view.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestToggle_StoreErrors(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: localstore.NewMemory().View(), setErr: errors.New("disk full")}
	tr := newTestTracker(t, store)

	_, err := tr.Toggle(ctx, "1", fp3)
	require.ErrorContains(t, err, "disk full")

	store.setErr = nil
	store.getErr = errors.New("locked")
	require.False(t, tr.IsRead(ctx, "1", fp3))
	require.Empty(t, tr.Marks(ctx))
}

func TestToggle_ReadErrorKeepsExistingMarks(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: localstore.NewMemory().View()}
	tr := newTestTracker(t, store)

	for _, id := range []string{"1", "2", "3"} {
		_, err := tr.Toggle(ctx, id, fp3)
		require.NoError(t, err)
	}

	store.getErr = errors.New("database is locked")
	read, err := tr.Toggle(ctx, "9", fp3)
	require.ErrorContains(t, err, "database is locked")
	require.False(t, read)

	store.getErr = nil
	require.Equal(t, map[string]string{
		"1": fp3.String(),
		"2": fp3.String(),
		"3": fp3.String(),
	}, tr.Marks(ctx))
}

func TestSubscribe_OtherViewSeesToggle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")
	s1, err := localstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s1.Close() })
	s2, err := localstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	view1 := newTestTracker(t, s1)
	view2 := newTestTracker(t, s2)
	fp := domain.Fingerprint{UpdatedAt: "2024-02-01T00:00:00Z", Comments: "1 comment"}

	var observed []bool
	sub := view2.Subscribe(func() {
		observed = append(observed, view2.IsRead(ctx, "7", fp))
	})
	defer sub.Unsubscribe()

	_, err = view1.Toggle(ctx, "7", fp)
	require.NoError(t, err)
	require.Equal(t, []bool{true}, observed)
	require.True(t, view2.IsRead(ctx, "7", fp))

	_, err = view1.Toggle(ctx, "7", fp)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, observed)
}
