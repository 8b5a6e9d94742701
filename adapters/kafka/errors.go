package kafka

import (
	"errors"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/coregx/chatbridge"
)

// fatalErrors cannot be recovered by polling again.
var fatalErrors = []error{
	kgo.ErrClientClosed,
	kerr.SaslAuthenticationFailed,
	kerr.TopicAuthorizationFailed,
	kerr.GroupAuthorizationFailed,
	kerr.ClusterAuthorizationFailed,
	kerr.UnknownTopicOrPartition,
	kerr.UnknownTopicID,
	kerr.InvalidTopicException,
}

func isFatal(err error) bool {
	for _, fatal := range fatalErrors {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

// classify wraps err for the consumer loop: fatal broker errors stop the loop,
// everything else is retried after a backoff.
func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	if isFatal(err) {
		return chatbridge.NewErrorWithCause(chatbridge.ErrCodeBrokerFatal, msg, err)
	}
	return err
}
