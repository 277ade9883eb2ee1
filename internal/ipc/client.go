package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ForwardTimeout bounds one forwarded command, dial included.
const ForwardTimeout = 220 * time.Millisecond

// ErrNoOwner reports that nothing is listening on the owner socket.
var ErrNoOwner = errors.New("no navieyes owner listening")

// RemoteError is a command the owner received and refused.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s refused by owner", e.Command)
	}
	return e.Message
}

// Send writes one request line to the owner at path and decodes one
// response line. The whole exchange shares a single deadline.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Forward hands command to a running owner. It returns ErrNoOwner when the
// socket is missing or refuses connections, and a *RemoteError when the
// owner answers with ok=false. The socket file is never touched.
func Forward(ctx context.Context, path string, command string) (Response, error) {
	resp, err := Send(ctx, path, Request{Command: command}, ForwardTimeout)
	switch {
	case err == nil && resp.OK:
		return resp, nil
	case err == nil:
		return resp, &RemoteError{Command: command, Message: resp.Error}
	case ownerAbsent(err):
		return Response{}, ErrNoOwner
	default:
		return Response{}, fmt.Errorf("forward command %q: %w", command, err)
	}
}

// Probe reports whether a responsive owner is listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case ownerAbsent(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

// ownerAbsent matches dial failures that mean no process owns the socket:
// the path is gone, or it is a leftover file nobody accepts on.
func ownerAbsent(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
