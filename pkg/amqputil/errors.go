package amqputil

import (
	"errors"
	"fmt"

	"github.com/Azure/go-amqp"
)

// DescribeError keeps a peer's error condition and description visible when
// a connection, session or link is torn down remotely.
func DescribeError(err error) error {
	var (
		connErr *amqp.ConnError
		sessErr *amqp.SessionError
		linkErr *amqp.LinkError
	)
	switch {
	case errors.As(err, &connErr) && connErr.RemoteErr != nil:
		return fmt.Errorf("connection closed by peer: %s: %s", connErr.RemoteErr.Condition, connErr.RemoteErr.Description)
	case errors.As(err, &sessErr) && sessErr.RemoteErr != nil:
		return fmt.Errorf("session closed by peer: %s: %s", sessErr.RemoteErr.Condition, sessErr.RemoteErr.Description)
	case errors.As(err, &linkErr) && linkErr.RemoteErr != nil:
		return fmt.Errorf("link closed by peer: %s: %s", linkErr.RemoteErr.Condition, linkErr.RemoteErr.Description)
	}
	return err
}
