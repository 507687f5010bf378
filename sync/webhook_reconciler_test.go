package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry is an in-memory RemoteHookRegistry.
type fakeRegistry struct {
	hooks     []RemoteHookRegistration
	nextID    int
	listErr   error
	createErr error
	deleteErr map[string]error

	lists   int
	creates []string
	deletes []string
}

func newFakeRegistry(hooks ...RemoteHookRegistration) *fakeRegistry {
	return &fakeRegistry{hooks: hooks, nextID: 100, deleteErr: make(map[string]error)}
}

func (f *fakeRegistry) ListWebhooks(_ context.Context) ([]RemoteHookRegistration, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	cp := make([]RemoteHookRegistration, len(f.hooks))
	copy(cp, f.hooks)
	return cp, nil
}

func (f *fakeRegistry) CreateWebhook(_ context.Context, url string) (RemoteHookRegistration, error) {
	f.creates = append(f.creates, url)
	if f.createErr != nil {
		return RemoteHookRegistration{}, f.createErr
	}
	f.nextID++
	h := RemoteHookRegistration{ID: fmt.Sprint(f.nextID), URL: url, EventType: "unsub", IsBackup: true, Status: "alive"}
	f.hooks = append(f.hooks, h)
	return h, nil
}

func (f *fakeRegistry) DeleteWebhook(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	for i, h := range f.hooks {
		if h.ID == id {
			f.hooks = append(f.hooks[:i], f.hooks[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRegistry) mutations() int {
	return len(f.creates) + len(f.deletes)
}

var exampleNamespace = CallbackNamespace{Host: "example", PathPrefix: "/ws/mailjet/"}

func newTestReconciler(t *testing.T, registry RemoteHookRegistry, desired string, opts ...ReconcilerOption) *WebhookReconciler {
	t.Helper()
	r, err := NewWebhookReconciler(
		registry,
		func() (string, error) { return desired, nil },
		exampleNamespace.IsOwnURL,
		opts...,
	)
	require.NoError(t, err)
	return r
}

func TestReconcile_ReplacesStaleRegistration(t *testing.T) {
	registry := newFakeRegistry(RemoteHookRegistration{ID: "1", URL: "https://old.example/ws/mailjet/1"})
	r := newTestReconciler(t, registry, "https://old.example/ws/mailjet/2")

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, registry.deletes)
	assert.Equal(t, []string{"https://old.example/ws/mailjet/2"}, registry.creates)
	assert.Equal(t, []string{"1"}, report.Deleted)
	assert.Equal(t, "101", report.Created)
	assert.Empty(t, report.Kept)
}

func TestReconcile_DesiredAlreadyRegistered(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(RemoteHookRegistration{ID: "7", URL: desired})
	r := newTestReconciler(t, registry, desired)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, registry.mutations())
	assert.Equal(t, "7", report.Kept)
}

func TestReconcile_Idempotent(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(
		RemoteHookRegistration{ID: "1", URL: "https://hooks.example/ws/mailjet/old"},
		RemoteHookRegistration{ID: "2", URL: "https://hooks.example/ws/mailjet/older"},
	)
	r := newTestReconciler(t, registry, desired)

	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	mutations := registry.mutations()

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mutations, registry.mutations(), "second pass must not mutate")
	assert.NotEmpty(t, report.Kept)

	current := 0
	for _, h := range registry.hooks {
		if h.URL == desired {
			current++
		}
	}
	assert.Equal(t, 1, current)
	assert.Len(t, registry.hooks, 1)
}

func TestReconcile_ForeignRegistrationsUntouched(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(
		RemoteHookRegistration{ID: "1", URL: "https://other-app.io/callbacks/mailjet"},
		RemoteHookRegistration{ID: "2", URL: "https://hooks.example/other/path"},
		RemoteHookRegistration{ID: "3", URL: "https://hooks.example/ws/mailjet/stale"},
		RemoteHookRegistration{ID: "4", URL: "https://notexample/ws/mailjet/x"},
	)
	r := newTestReconciler(t, registry, desired)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, registry.deletes)
	assert.Equal(t, 3, report.Foreign)
	assert.Equal(t, []string{desired}, registry.creates)
}

func TestReconcile_DeletesDuplicatesOfDesired(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(
		RemoteHookRegistration{ID: "1", URL: desired},
		RemoteHookRegistration{ID: "2", URL: desired},
	)
	r := newTestReconciler(t, registry, desired)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", report.Kept)
	assert.Equal(t, []string{"2"}, report.Deleted)
	assert.Empty(t, registry.creates)
}

func TestReconcile_DeletionFailureIsNotFatal(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(
		RemoteHookRegistration{ID: "1", URL: "https://hooks.example/ws/mailjet/a"},
		RemoteHookRegistration{ID: "2", URL: "https://hooks.example/ws/mailjet/b"},
	)
	registry.deleteErr["1"] = &RemoteError{Kind: RemoteTransportError, Method: "DELETE", Path: "eventcallbackurl/1"}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	r := newTestReconciler(t, registry, desired, WithReconcilerMetrics(metrics))

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, report.FailedDeletes)
	assert.Equal(t, []string{"2"}, report.Deleted)
	assert.NotEmpty(t, report.Created)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StaleDeletes.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StaleDeletes.WithLabelValues("deleted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Reconciliations.WithLabelValues("created")))
}

func TestReconcile_SkipsStaleWithoutID(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"
	registry := newFakeRegistry(
		RemoteHookRegistration{ID: "", URL: "https://hooks.example/ws/mailjet/broken"},
		RemoteHookRegistration{ID: "2", URL: "https://hooks.example/ws/mailjet/old"},
	)
	metrics := NewMetrics(prometheus.NewRegistry())
	r := newTestReconciler(t, registry, desired, WithReconcilerMetrics(metrics))

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, registry.deletes)
	assert.Equal(t, []string{"2"}, report.Deleted)
	assert.Empty(t, report.FailedDeletes)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StaleDeletes.WithLabelValues("skipped")))
	assert.Equal(t, []string{desired}, registry.creates)
}

func TestReconcile_CreateFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.createErr = &RemoteError{Kind: RemoteApplicationError, Method: "POST", Path: "eventcallbackurl", Status: 400}
	r := newTestReconciler(t, registry, "https://hooks.example/ws/mailjet/ws-1")

	_, err := r.Reconcile(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteApplication)
}

func TestReconcile_ListFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.listErr = &RemoteError{Kind: RemoteTransportError, Method: "GET", Path: "eventcallbackurl"}
	r := newTestReconciler(t, registry, "https://hooks.example/ws/mailjet/ws-1")

	_, err := r.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrRemoteTransport)
	assert.Zero(t, registry.mutations())
}

func TestReconcile_PreconditionFailed(t *testing.T) {
	registry := newFakeRegistry(RemoteHookRegistration{ID: "1", URL: "https://hooks.example/ws/mailjet/old"})
	r := newTestReconciler(t, registry, "https://hooks.example/ws/mailjet/ws-1",
		WithSelfTest(func() error { return errors.New("api key is empty") }))

	_, err := r.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	ok, err := r.Verify(context.Background())
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.False(t, ok)

	assert.Zero(t, registry.lists)
	assert.Zero(t, registry.mutations())
}

func TestVerify(t *testing.T) {
	desired := "https://hooks.example/ws/mailjet/ws-1"

	registry := newFakeRegistry(RemoteHookRegistration{ID: "1", URL: "https://hooks.example/ws/mailjet/old"})
	r := newTestReconciler(t, registry, desired)
	ok, err := r.Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	registry.hooks = append(registry.hooks, RemoteHookRegistration{ID: "2", URL: desired})
	ok, err = r.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, registry.mutations())

	// desired urls outside the namespace are never reported as registered
	foreign := newTestReconciler(t, newFakeRegistry(RemoteHookRegistration{ID: "1", URL: "https://elsewhere.io/hook"}), "https://elsewhere.io/hook")
	ok, err = foreign.Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewWebhookReconciler_RequiresCollaborators(t *testing.T) {
	url := func() (string, error) { return "", nil }
	own := func(string) bool { return true }

	_, err := NewWebhookReconciler(nil, url, own)
	assert.Error(t, err)
	_, err = NewWebhookReconciler(newFakeRegistry(), nil, own)
	assert.Error(t, err)
	_, err = NewWebhookReconciler(newFakeRegistry(), url, nil)
	assert.Error(t, err)
}

func TestCallbackURL(t *testing.T) {
	w := WebhooksSettings{PublicURL: "https://hooks.example.com/"}
	u, err := w.CallbackURL("ws 1")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/ws/mailjet/ws%201", u)

	w.Route = "/callbacks/{webserviceId}/mailjet"
	u, err = w.CallbackURL("123")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/callbacks/123/mailjet", u)

	_, err = WebhooksSettings{}.CallbackURL("123")
	assert.Error(t, err)
}

func TestCallbackNamespace_IsOwnURL(t *testing.T) {
	n := CallbackNamespace{Host: "example.com", PathPrefix: "/ws/mailjet/"}
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/ws/mailjet/1", true},
		{"https://hooks.example.com/ws/mailjet/1", true},
		{"http://HOOKS.EXAMPLE.COM:8080/ws/mailjet/1", true},
		{" https://example.com/ws/mailjet/1 ", true},
		{"https://badexample.com/ws/mailjet/1", false},
		{"https://example.com/other/1", false},
		{"https://example.com.evil.io/ws/mailjet/1", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.IsOwnURL(tt.url), tt.url)
	}
	assert.False(t, CallbackNamespace{}.IsOwnURL("https://example.com/ws/mailjet/1"))

	bare := CallbackNamespace{Host: "example.com", PathPrefix: "/ws/mailjet"}
	assert.True(t, bare.IsOwnURL("https://example.com/ws/mailjet/1"))
	assert.True(t, bare.IsOwnURL("https://example.com/ws/mailjet"))
	assert.False(t, bare.IsOwnURL("https://example.com/ws/mailjetother/1"))
	assert.False(t, n.IsOwnURL("https://example.com/ws/mailjetother/1"))
}
