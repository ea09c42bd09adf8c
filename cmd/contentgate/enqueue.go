package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/queue"
)

var enqueueFlags struct {
	item string
	role string
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a page refresh for a running worker",
	Long: `Queue one job. The job goes to the Redis list when a Redis address is
configured, otherwise it is dropped into the inbox directory.`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueueFlags.item, "item", "", "item id")
	enqueueCmd.Flags().StringVar(&enqueueFlags.role, "role", "", "page role")
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	if err := requireItemRole(enqueueFlags.item, enqueueFlags.role); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	job := queue.Job{ID: uuid.NewString(), ItemID: enqueueFlags.item, Role: content.Role(enqueueFlags.role)}

	switch {
	case cfg.Queue.RedisAddr != "":
		client := queue.NewRedisClient(cfg.Queue.RedisAddr)
		defer client.Close()
		if err := queue.Push(cmd.Context(), client, cfg.Queue.RedisKey, job); err != nil {
			return err
		}
		fmt.Printf("job %s pushed to %s\n", job.ID, cfg.Queue.RedisKey)
	case cfg.Queue.InboxDir != "":
		path, err := dropInInbox(cfg.Queue.InboxDir, job)
		if err != nil {
			return err
		}
		fmt.Printf("job %s written to %s\n", job.ID, path)
	default:
		return errors.New("no Redis address or inbox directory configured")
	}
	return nil
}

// dropInInbox writes the job under a temporary name and renames it, so the
// inbox watcher never sees a partial file.
func dropInInbox(dir string, job queue.Job) (string, error) {
	if !job.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", job.Role)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	tmp := filepath.Join(dir, "."+job.ID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write job: %w", err)
	}
	path := filepath.Join(dir, job.ID+".json")
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}
	return path, nil
}
