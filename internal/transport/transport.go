// Package transport defines the capability-set contract a concrete
// messaging surface (bot-API, linked-device) must satisfy. A transport is
// its capabilities, not a shared base type.
package transport

import (
	"context"
	"time"
)

// Kind distinguishes which transport a jid belongs to.
type Kind string

const (
	KindBotAPI       Kind = "bot_api"
	KindLinkedDevice Kind = "linked_device"
)

// Sender is the outbound capability set: text, image, and voice replies,
// plus which kind of transport this is. Do not assume any shared base
// type — a transport need only implement the capabilities it supports.
type Sender interface {
	SendText(ctx context.Context, jid, text string) error
	SendImage(ctx context.Context, jid, path, caption string) error
	SendVoice(ctx context.Context, jid, audioPath string) error
	Kind() Kind
}

// InboundMessage is one message arriving from a transport.
type InboundMessage struct {
	JID        string
	IsGroup    bool
	Text       string
	ReceivedAt time.Time
}

// Handler processes one inbound message, producing at most one reply
// through whatever Sender the transport bridge holds for this transport.
type Handler func(ctx context.Context, msg InboundMessage)

// Receiver is the inbound capability: start and stop listening for
// messages, invoking handler for each one.
type Receiver interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}
