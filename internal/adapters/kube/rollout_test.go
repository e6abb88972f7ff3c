package kube

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	k8stesting "k8s.io/client-go/testing"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

func newDeployment(namespace, name string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
	}
}

func newStatefulSet(namespace, name string) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
	}
}

func newTestTrigger(clientset *fake.Clientset) *Trigger {
	trigger := NewTriggerWithClient(clientset, slog.New(slog.DiscardHandler))
	trigger.now = func() time.Time { return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC) }
	return trigger
}

func TestRestartPatchesAnnotation(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		newDeployment("apps", "web"),
		newStatefulSet("apps", "db"),
	)
	trigger := newTestTrigger(clientset)

	err := trigger.Restart(context.Background(), domain.DeploymentSpec{
		Namespace: "apps",
		Resources: []string{"deployment/web", "statefulset/db"},
	})
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments("apps").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-23T12:00:00Z",
		dep.Spec.Template.Annotations["kubectl.kubernetes.io/restartedAt"])

	sts, err := clientset.AppsV1().StatefulSets("apps").Get(context.Background(), "db", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-23T12:00:00Z",
		sts.Spec.Template.Annotations["kubectl.kubernetes.io/restartedAt"])
}

func TestEmptyResourceListIsNoOp(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	trigger := newTestTrigger(clientset)

	err := trigger.Restart(context.Background(), domain.DeploymentSpec{Namespace: "apps"})
	assert.NoError(t, err)
	assert.Empty(t, clientset.Actions())
}

func TestPartialFailureKeepsGoing(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		newDeployment("apps", "web"),
		newDeployment("apps", "api"),
	)
	clientset.PrependReactor("patch", "deployments",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			patchAction := action.(k8stesting.PatchAction)
			if patchAction.GetName() == "web" {
				return true, nil, errors.New("admission webhook rejected")
			}
			return false, nil, nil
		})
	trigger := newTestTrigger(clientset)

	err := trigger.Restart(context.Background(), domain.DeploymentSpec{
		Namespace: "apps",
		Resources: []string{"deployment/web", "deployment/api"},
	})

	var rerr *domain.RolloutError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.RolloutPartialFailure, rerr.Kind)
	assert.Equal(t, []string{"deployment/web"}, rerr.Failed)
	assert.Contains(t, rerr.Reasons["deployment/web"], "admission webhook rejected")

	// The later resource was still restarted.
	api, getErr := clientset.AppsV1().Deployments("apps").Get(context.Background(), "api", metav1.GetOptions{})
	require.NoError(t, getErr)
	assert.NotEmpty(t, api.Spec.Template.Annotations["kubectl.kubernetes.io/restartedAt"])
}

func TestUnsupportedKindIsAFailedResource(t *testing.T) {
	clientset := fake.NewSimpleClientset(newDeployment("apps", "web"))
	trigger := newTestTrigger(clientset)

	err := trigger.Restart(context.Background(), domain.DeploymentSpec{
		Namespace: "apps",
		Resources: []string{"cronjob/reaper", "deployment/web"},
	})

	var rerr *domain.RolloutError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.RolloutPartialFailure, rerr.Kind)
	assert.Equal(t, []string{"cronjob/reaper"}, rerr.Failed)
}

func TestRestartHonorsContextDeadlineWhenClusterStalls(t *testing.T) {
	// An API server that accepts the connection but never answers: the
	// restart must give up at the caller's deadline instead of waiting for
	// the reachability probe to return on its own.
	stall := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-stall:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(stall)
		srv.Close()
	})

	clientset, err := kubernetes.NewForConfig(&rest.Config{Host: srv.URL})
	require.NoError(t, err)
	trigger := NewTriggerWithClient(clientset, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = trigger.Restart(ctx, domain.DeploymentSpec{
		Namespace: "apps",
		Resources: []string{"deployment/web"},
	})
	elapsed := time.Since(start)

	var rerr *domain.RolloutError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.RolloutClusterUnreachable, rerr.Kind)
	assert.ErrorIs(t, rerr.Err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "Restart kept waiting past the context deadline")
}

func TestMissingResourceIsAFailedResource(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	trigger := newTestTrigger(clientset)

	err := trigger.Restart(context.Background(), domain.DeploymentSpec{
		Namespace: "apps",
		Resources: []string{"deployment/ghost"},
	})

	var rerr *domain.RolloutError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []string{"deployment/ghost"}, rerr.Failed)
}
