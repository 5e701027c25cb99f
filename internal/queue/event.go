// Package queue defines the provisioning events exchanged over RabbitMQ,
// the publisher used by the services and the ownership reconcile consumer.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/webmail-relay/internal/mailbox"
)

// Queue names. Both are durable.
const (
	MailboxProvisionedQueue = "mailbox.provisioned"
	OwnershipPendingQueue   = "mailbox.ownership.pending"
)

// MailboxProvisionedEvent is published once a mailbox tree and its address
// row both exist.
type MailboxProvisionedEvent struct {
	EventID       string `json:"event_id"`
	UserID        uint64 `json:"user_id"`
	AddressID     uint64 `json:"address_id"`
	Email         string `json:"email"`
	MaildirPath   string `json:"maildir_path"`
	Primary       bool   `json:"primary"`
	ProvisionedAt string `json:"provisioned_at"`
}

// OwnershipPendingEvent asks the reconcile worker to hand a tree to the
// mail server's system account.
type OwnershipPendingEvent struct {
	EventID    string `json:"event_id"`
	Domain     string `json:"domain"`
	LocalPart  string `json:"local_part"`
	Root       string `json:"root"`
	Owner      string `json:"owner"`
	Reason     string `json:"reason"`
	ReportedAt string `json:"reported_at"`
}

// NewOwnershipPendingEvent stamps p with an id and time.
func NewOwnershipPendingEvent(p mailbox.PendingOwnership, now time.Time) OwnershipPendingEvent {
	return OwnershipPendingEvent{
		EventID:    uuid.NewString(),
		Domain:     p.Domain,
		LocalPart:  p.LocalPart,
		Root:       p.Root,
		Owner:      p.Owner,
		Reason:     p.Reason,
		ReportedAt: now.UTC().Format(time.RFC3339),
	}
}
