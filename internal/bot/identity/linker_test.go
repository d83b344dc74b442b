package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBindingStore struct {
	bindings  []Binding
	err       error
	createErr error
	lookups   int
	created   []Binding
	deleted   int
}

func (s *stubBindingStore) FindBySender(_ context.Context, _, _ string) ([]Binding, error) {
	s.lookups++
	return s.bindings, s.err
}

func (s *stubBindingStore) Create(_ context.Context, b Binding) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, b)
	return nil
}

func (s *stubBindingStore) Delete(_ context.Context, _, _ string) (bool, error) {
	s.deleted++
	return true, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCache(t *testing.T) *LinkCache {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewLinkCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestLinker_ResolveLinked(t *testing.T) {
	store := &stubBindingStore{bindings: []Binding{
		{Channel: "line", SenderID: "U1", CustomerID: 42, CustomerName: "王小明", Phone: "0912345678"},
	}}
	linker := NewLinker(store, nil, quietLogger())

	link, err := linker.Resolve(context.Background(), "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status)
	assert.True(t, link.Linked())
	assert.Equal(t, int64(42), link.CustomerID)
	assert.Equal(t, "王小明", link.CustomerName)
}

func TestLinker_ResolveUnlinked(t *testing.T) {
	linker := NewLinker(&stubBindingStore{}, nil, quietLogger())

	link, err := linker.Resolve(context.Background(), "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlinked, link.Status)
	assert.False(t, link.Linked())
}

func TestLinker_ResolveAmbiguous(t *testing.T) {
	store := &stubBindingStore{bindings: []Binding{
		{CustomerID: 1}, {CustomerID: 2},
	}}
	linker := NewLinker(store, nil, quietLogger())

	link, err := linker.Resolve(context.Background(), "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, link.Status)
	assert.Zero(t, link.CustomerID)
}

func TestLinker_ResolveStoreErrorDegrades(t *testing.T) {
	store := &stubBindingStore{err: errors.New("connection refused")}
	linker := NewLinker(store, nil, quietLogger())

	link, err := linker.Resolve(context.Background(), "line", "U1")
	require.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, StatusUnlinked, link.Status)
}

func TestLinker_ResolveUsesCache(t *testing.T) {
	store := &stubBindingStore{bindings: []Binding{{CustomerID: 42, CustomerName: "王小明"}}}
	linker := NewLinker(store, testCache(t), quietLogger())
	ctx := context.Background()

	first, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)
	second, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.lookups, "second resolve should be served from cache")
}

func TestLinker_BindInvalidatesCache(t *testing.T) {
	store := &stubBindingStore{}
	linker := NewLinker(store, testCache(t), quietLogger())
	ctx := context.Background()

	link, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)
	require.Equal(t, StatusUnlinked, link.Status)

	store.bindings = []Binding{{Channel: "line", SenderID: "U1", CustomerID: 7}}
	require.NoError(t, linker.Bind(ctx, Binding{Channel: "line", SenderID: "U1", CustomerID: 7}))

	link, err = linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status, "bind must drop the stale cached resolution")
	assert.Len(t, store.created, 1)
}

func TestLinker_UnbindInvalidatesCache(t *testing.T) {
	store := &stubBindingStore{bindings: []Binding{{CustomerID: 7}}}
	linker := NewLinker(store, testCache(t), quietLogger())
	ctx := context.Background()

	_, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)

	store.bindings = nil
	existed, err := linker.Unbind(ctx, "line", "U1")
	require.NoError(t, err)
	assert.True(t, existed)

	link, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlinked, link.Status)
}

type stubDirectory struct {
	matches map[string][]Customer
	err     error
}

func (s *stubDirectory) MatchByPhone(_ context.Context, phone string) ([]Customer, error) {
	return s.matches[phone], s.err
}

func TestLinker_ResolveByPhoneSingleMatchBinds(t *testing.T) {
	store := &stubBindingStore{}
	dir := &stubDirectory{matches: map[string][]Customer{
		"0912345678": {{ID: 42, Name: "王小明"}},
	}}
	linker := NewLinker(store, nil, quietLogger(), WithDirectory(dir))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "0912345678")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status)
	assert.Equal(t, int64(42), link.CustomerID)
	assert.Equal(t, "王小明", link.CustomerName)

	require.Len(t, store.created, 1, "a unique match must persist the binding")
	assert.Equal(t, int64(42), store.created[0].CustomerID)
	assert.Equal(t, "0912345678", store.created[0].Phone)
}

func TestLinker_ResolveByPhoneNoMatchStaysUnlinked(t *testing.T) {
	store := &stubBindingStore{}
	linker := NewLinker(store, nil, quietLogger(), WithDirectory(&stubDirectory{}))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "0900000000")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlinked, link.Status)
	assert.Empty(t, store.created)
}

func TestLinker_ResolveByPhoneSharedPhoneIsAmbiguous(t *testing.T) {
	store := &stubBindingStore{}
	dir := &stubDirectory{matches: map[string][]Customer{
		"0912345678": {{ID: 1, Name: "王小明"}, {ID: 2, Name: "王大明"}},
	}}
	linker := NewLinker(store, nil, quietLogger(), WithDirectory(dir))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "0912345678")
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, link.Status)
	assert.Empty(t, store.created, "a shared phone must leave the binding untouched")
}

func TestLinker_ResolveByPhoneRemembersRecentPhone(t *testing.T) {
	store := &stubBindingStore{}
	dir := &stubDirectory{matches: map[string][]Customer{}}
	linker := NewLinker(store, testCache(t), quietLogger(), WithDirectory(dir))
	ctx := context.Background()

	// First turn offers the phone but nobody matches yet.
	link, err := linker.ResolveByPhone(ctx, "line", "U1", "0912345678")
	require.NoError(t, err)
	require.Equal(t, StatusUnlinked, link.Status)

	// The customer record appears; a later turn without a phone still
	// matches on the remembered one.
	dir.matches["0912345678"] = []Customer{{ID: 42, Name: "王小明"}}
	link, err = linker.ResolveByPhone(ctx, "line", "U1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status)
	assert.Equal(t, int64(42), link.CustomerID)
}

func TestLinker_ResolveByPhoneNoRecentPhoneIsNoop(t *testing.T) {
	store := &stubBindingStore{}
	linker := NewLinker(store, testCache(t), quietLogger(), WithDirectory(&stubDirectory{}))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlinked, link.Status)
}

func TestLinker_ResolveByPhoneDirectoryErrorDegrades(t *testing.T) {
	dir := &stubDirectory{err: errors.New("connection refused")}
	linker := NewLinker(&stubBindingStore{}, nil, quietLogger(), WithDirectory(dir))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "0912345678")
	require.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, StatusUnlinked, link.Status)
}

func TestLinker_ResolveByPhoneLosesRaceToExplicitBind(t *testing.T) {
	store := &stubBindingStore{createErr: ErrAlreadyBound, bindings: []Binding{
		{Channel: "line", SenderID: "U1", CustomerID: 7, CustomerName: "李大同"},
	}}
	dir := &stubDirectory{matches: map[string][]Customer{
		"0912345678": {{ID: 42, Name: "王小明"}},
	}}
	linker := NewLinker(store, nil, quietLogger(), WithDirectory(dir))

	link, err := linker.ResolveByPhone(context.Background(), "line", "U1", "0912345678")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status)
	assert.Equal(t, int64(7), link.CustomerID, "the stored binding wins the race")
}

func TestLinker_StoreErrorNotCached(t *testing.T) {
	store := &stubBindingStore{err: errors.New("boom")}
	linker := NewLinker(store, testCache(t), quietLogger())
	ctx := context.Background()

	_, err := linker.Resolve(ctx, "line", "U1")
	require.Error(t, err)

	store.err = nil
	store.bindings = []Binding{{CustomerID: 9}}
	link, err := linker.Resolve(ctx, "line", "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, link.Status)
}
