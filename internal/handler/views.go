package handler

import (
	"time"

	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/service"
)

type sessionView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Mode      string    `json:"mode"`
}

func toSession(s service.Session) sessionView {
	return sessionView{Token: s.Token, ExpiresAt: s.ExpiresAt, Mode: s.Mode}
}

type userView struct {
	ID          uint64     `json:"id"`
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUser(u model.User) userView {
	return userView{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, LastLoginAt: u.LastLoginAt}
}

type addressView struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	LocalPart string    `json:"local_part"`
	Primary   bool      `json:"primary"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toAddress(a model.MailAddress) addressView {
	return addressView{ID: a.ID, Email: a.Email, LocalPart: a.LocalPart, Primary: a.IsPrimary, Active: a.IsActive, CreatedAt: a.CreatedAt}
}

type messageView struct {
	UID      uint32    `json:"uid"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	FromName string    `json:"from_name,omitempty"`
	Date     time.Time `json:"date"`
	Seen     bool      `json:"seen"`
	Size     int64     `json:"size"`
}

type inboxView struct {
	Total    uint32        `json:"total"`
	Unseen   uint32        `json:"unseen"`
	Messages []messageView `json:"messages"`
}

func toInbox(in mailclient.Inbox) inboxView {
	out := inboxView{Total: in.Total, Unseen: in.Unseen, Messages: make([]messageView, 0, len(in.Messages))}
	for _, m := range in.Messages {
		out.Messages = append(out.Messages, messageView{
			UID: m.UID, Subject: m.Subject, From: m.From, FromName: m.FromName,
			Date: m.Date, Seen: m.Seen, Size: m.Size,
		})
	}
	return out
}
