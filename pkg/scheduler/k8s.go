package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
)

// newK8sClient builds a core-API client from the given kubeconfig, or
// the in-cluster config when none is set. It is used only to poll pod
// phase; DIJob itself is a CRD
// submitted and torn down with the kubectl CLI, since the DIJob types
// aren't in client-go's typed scheme.
func newK8sClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading kubernetes config: %w", err)
	}
	return kubernetes.NewForConfig(cfg)
}

// validateK8sName enforces the DNS-label rules a DIJob resource name
// must satisfy: 1-63 characters, lowercase alphanumerics or '-', first
// character alphanumeric.
func validateK8sName(name string) error {
	if len(name) == 0 || len(name) > 63 {
		return hpoerrors.ConfigError("scheduler.validateK8sName",
			fmt.Sprintf("task name must be 1-63 characters, got %d", len(name)))
	}
	for i, r := range name {
		lower := r >= 'a' && r <= 'z'
		digit := r >= '0' && r <= '9'
		if i == 0 && !lower && !digit {
			return hpoerrors.ConfigError("scheduler.validateK8sName",
				"task name must start with a lowercase alphanumeric character: "+name)
		}
		if !lower && !digit && r != '-' {
			return hpoerrors.ConfigError("scheduler.validateK8sName",
				"task name may only contain lowercase alphanumerics and '-': "+name)
		}
	}
	return nil
}

// podPhase reports the phase of the pod backing a DIJob task. The job
// controller names a job's first worker pod "<task>-serial-0".
func podPhase(ctx context.Context, client kubernetes.Interface, namespace, taskName string) (corev1.PodPhase, error) {
	pod, err := client.CoreV1().Pods(namespace).Get(ctx, taskName+"-serial-0", metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return pod.Status.Phase, nil
}

// dijobManifest holds the two-document YAML stream (DIJob + ConfigMap)
// patched per task before submission.
type dijobManifest struct {
	docs []map[string]interface{}
}

func loadDijobManifest(path string) (*dijobManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: reading k8s manifest: %w", err)
	}

	var docs []map[string]interface{}
	for _, chunk := range bytes.Split(raw, []byte("\n---\n")) {
		if len(bytes.TrimSpace(chunk)) == 0 {
			continue
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(chunk, &doc); err != nil {
			return nil, fmt.Errorf("scheduler: parsing k8s manifest: %w", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, hpoerrors.ConfigError("scheduler.loadDijobManifest", "k8s manifest has no documents")
	}
	return &dijobManifest{docs: docs}, nil
}

// patchForTask rewrites the DIJob's metadata.name, its ConfigMap sibling
// document's metadata.name, and the DIJob's "config-py" volume reference
// to point at that renamed ConfigMap: three coordinated edits, applied
// before every kubectl create.
func (m *dijobManifest) patchForTask(t *Task) error {
	configMapName := "config-py-" + t.Name

	var dijob, configMap map[string]interface{}
	for _, doc := range m.docs {
		switch doc["kind"] {
		case "DIJob":
			dijob = doc
		case "ConfigMap":
			configMap = doc
		}
	}
	if dijob == nil {
		return hpoerrors.ConfigError("scheduler.patchForTask", "k8s manifest has no DIJob document")
	}

	setNestedName(dijob, t.Name)

	if configMap != nil {
		setNestedName(configMap, configMapName)
	}

	volumes, err := nestedSlice(dijob, "spec", "tasks")
	if err != nil {
		return err
	}
	for _, rawTask := range volumes {
		taskDoc, ok := rawTask.(map[string]interface{})
		if !ok {
			continue
		}
		vols, err := nestedSlice(taskDoc, "template", "spec", "volumes")
		if err != nil {
			continue
		}
		for _, rawVol := range vols {
			vol, ok := rawVol.(map[string]interface{})
			if !ok || vol["name"] != "config-py" {
				continue
			}
			if cm, ok := vol["configMap"].(map[string]interface{}); ok {
				cm["name"] = configMapName
			}
		}
	}
	return nil
}

func setNestedName(doc map[string]interface{}, name string) {
	meta, ok := doc["metadata"].(map[string]interface{})
	if !ok {
		meta = map[string]interface{}{}
		doc["metadata"] = meta
	}
	meta["name"] = name
}

func nestedSlice(doc map[string]interface{}, path ...string) ([]interface{}, error) {
	cur := interface{}(doc)
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, hpoerrors.ConfigError("scheduler.nestedSlice", "k8s manifest missing field "+p)
		}
		cur = m[p]
	}
	slice, ok := cur.([]interface{})
	if !ok {
		return nil, hpoerrors.ConfigError("scheduler.nestedSlice", "k8s manifest field is not a list")
	}
	return slice, nil
}

// writeManifest renders the patched manifest for a task, appending the
// task's generated config lines (indented under the ConfigMap's data
// key) so the submitted job carries its own hyperparameter overrides.
func (m *dijobManifest) writeManifest(t *Task, configLines []string, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("scheduler: writing k8s manifest: %w", err)
	}
	defer f.Close()

	for i, doc := range m.docs {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("scheduler: rendering k8s manifest: %w", err)
		}
		if _, err := f.Write(out); err != nil {
			return err
		}
		if doc["kind"] == "ConfigMap" {
			for _, line := range configLines {
				if _, err := fmt.Fprintf(f, "    %s\n", line); err != nil {
					return err
				}
			}
		}
		if i < len(m.docs)-1 {
			if _, err := f.WriteString("---\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

func runKubectl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("scheduler: kubectl %v: %w: %s", args, err, stderr.String())
	}
	return nil
}

func kubectlCopyFile(ctx context.Context, podName, remotePath, localPath string) error {
	return runKubectl(ctx, "cp", podName+":"+remotePath, localPath)
}

func kubectlFileExists(ctx context.Context, podName, remotePath string) bool {
	cmd := exec.CommandContext(ctx, "kubectl", "exec", "-i", podName, "--", "ls", remotePath)
	return cmd.Run() == nil
}

// harvestK8s collects a finished DIJob's result files. When the job's
// artifact directory is mounted locally (NFS) the files are read
// directly; otherwise they are pulled with kubectl cp into the local
// work directory first.
func (s *Scheduler) harvestK8s(ctx context.Context, t *Task) (interface{}, map[string]interface{}, bool) {
	if retval, result, ok := harvestLocal(s.cfg.WorkDir, t.Name); ok {
		return retval, result, true
	}

	podName := t.Name + "-serial-0"
	localDir := filepath.Join(s.cfg.WorkDir, t.Name)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, nil, false
	}

	remoteDir := s.cfg.K8sRemotePath + s.cfg.WorkDir + t.Name + "/"
	found := false
	for _, name := range []string{"result.json", "result.pkl"} {
		remote := remoteDir + name
		if !kubectlFileExists(ctx, podName, remote) {
			continue
		}
		local := filepath.Join(localDir, name)
		if err := kubectlCopyFile(ctx, podName, remote, local); err != nil {
			continue
		}
		found = true
	}
	if !found {
		return nil, nil, false
	}

	if remote := remoteDir + "result.txt"; kubectlFileExists(ctx, podName, remote) {
		_ = kubectlCopyFile(ctx, podName, remote, filepath.Join(localDir, "result.txt"))
	}

	return harvestLocal(s.cfg.WorkDir, t.Name)
}
