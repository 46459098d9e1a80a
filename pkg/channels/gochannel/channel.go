// Package gochannel provides the in-memory watermill transport for single-process deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const defaultBuffer = 256

type Options struct {
	// Buffer is the per-subscriber output buffer. Zero uses 256.
	Buffer int64
	// Replay keeps published notifications for subscribers that attach later and makes
	// publishers wait for the acknowledgement.
	Replay bool
}

// CreateChannel returns one GoChannel serving as both publisher and subscriber.
func CreateChannel(opts Options, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			Persistent:                     opts.Replay,
			BlockPublishUntilSubscriberAck: opts.Replay,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
