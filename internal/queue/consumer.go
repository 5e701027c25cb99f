package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailbox"
)

// Reconciler consumes ownership-pending events and retries the chown.
type Reconciler struct {
	url     string
	baseDir string
	priv    mailbox.PrivilegeAdapter
	log     logging.Logger
}

// NewReconciler only touches trees under baseDir.
func NewReconciler(url, baseDir string, priv mailbox.PrivilegeAdapter, log logging.Logger) *Reconciler {
	if url == "" {
		url = DefaultURL
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Reconciler{url: url, baseDir: baseDir, priv: priv, log: log.With("component", "reconciler")}
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(r.url)
		if err != nil {
			r.log.Warn(ctx, "dial broker failed", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = r.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn(ctx, "consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (r *Reconciler) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		r.log.Warn(ctx, "set qos failed", "err", err)
	}
	if _, err := declare(ch, OwnershipPendingQueue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, OwnershipPendingQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := r.Handle(ctx, d.Body); err != nil {
			r.log.Warn(ctx, "ownership reconcile failed", "message_id", d.MessageId, "err", err)
			// do not requeue; a missing system account would spin
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle applies one event.
func (r *Reconciler) Handle(ctx context.Context, body []byte) error {
	var ev OwnershipPendingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	root := filepath.Clean(ev.Root)
	if r.baseDir != "" {
		rel, err := filepath.Rel(filepath.Clean(r.baseDir), root)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("root %q outside mail base directory", ev.Root)
		}
	}
	if _, err := os.Lstat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Info(ctx, "mailbox gone, nothing to reconcile", "root", root)
			return nil
		}
		return err
	}
	if err := r.priv.Chown(ctx, root); err != nil {
		return err
	}
	r.log.Info(ctx, "mailbox ownership reconciled", "root", root, "owner", ev.Owner, "event_id", ev.EventID)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
