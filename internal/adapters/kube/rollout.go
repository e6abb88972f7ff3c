// Package kube implements the rollout trigger on the Kubernetes API. A
// restart is the same strategic-merge patch `kubectl rollout restart`
// issues: bumping the pod template's restartedAt annotation, which makes
// the workload controller replace its pods and re-pull the image.
package kube

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ktypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

// Trigger implements ports.RolloutTrigger.
type Trigger struct {
	client kubernetes.Interface
	now    func() time.Time
	logger *slog.Logger
}

// NewTrigger connects to the cluster: in-cluster config when running as a
// pod, otherwise the local kubeconfig.
func NewTrigger(logger *slog.Logger) (*Trigger, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			clientcmd.NewDefaultClientConfigLoadingRules(), nil,
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load cluster config: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	return NewTriggerWithClient(clientset, logger), nil
}

// NewTriggerWithClient wires an explicit clientset; used by tests with the
// fake clientset.
func NewTriggerWithClient(client kubernetes.Interface, logger *slog.Logger) *Trigger {
	return &Trigger{client: client, now: time.Now, logger: logger}
}

// Restart patches every resource in configured order. One resource failing
// does not stop the rest; all failures are aggregated into a partial-failure
// error. An empty resource list is an immediate no-op success.
func (t *Trigger) Restart(ctx context.Context, deployment domain.DeploymentSpec) error {
	if len(deployment.Resources) == 0 {
		return nil
	}

	// One reachability probe up front: a control plane that cannot be
	// contacted at all is a different failure than per-resource errors.
	if err := t.probe(ctx); err != nil {
		return &domain.RolloutError{Kind: domain.RolloutClusterUnreachable, Err: err}
	}

	patch := []byte(fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{%q:%q}}}}}`,
		restartedAtAnnotation, t.now().UTC().Format(time.RFC3339),
	))

	var failed []string
	reasons := make(map[string]string)
	for _, resource := range deployment.Resources {
		t.logger.Info("restarting resource", "namespace", deployment.Namespace, "resource", resource)
		if err := t.restartOne(ctx, deployment.Namespace, resource, patch); err != nil {
			t.logger.Warn("restart failed", "namespace", deployment.Namespace, "resource", resource, "error", err)
			failed = append(failed, resource)
			reasons[resource] = err.Error()
		}
	}
	if len(failed) > 0 {
		return &domain.RolloutError{Kind: domain.RolloutPartialFailure, Failed: failed, Reasons: reasons}
	}
	return nil
}

// probe checks the control plane is reachable before any patch goes out.
// ServerVersion takes no context, so it runs on the side and the caller's
// deadline decides how long to wait for an answer.
func (t *Trigger) probe(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.client.Discovery().ServerVersion()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trigger) restartOne(ctx context.Context, namespace, resource string, patch []byte) error {
	kind, name, ok := strings.Cut(resource, "/")
	if !ok {
		return fmt.Errorf("resource %q is not in kind/name form", resource)
	}

	opts := metav1.PatchOptions{FieldManager: "lighthouse-hook"}
	var err error
	switch strings.ToLower(kind) {
	case "deployment", "deployments", "deploy":
		_, err = t.client.AppsV1().Deployments(namespace).
			Patch(ctx, name, ktypes.StrategicMergePatchType, patch, opts)
	case "statefulset", "statefulsets", "sts":
		_, err = t.client.AppsV1().StatefulSets(namespace).
			Patch(ctx, name, ktypes.StrategicMergePatchType, patch, opts)
	case "daemonset", "daemonsets", "ds":
		_, err = t.client.AppsV1().DaemonSets(namespace).
			Patch(ctx, name, ktypes.StrategicMergePatchType, patch, opts)
	default:
		err = fmt.Errorf("unsupported resource kind %q", kind)
	}
	return err
}
