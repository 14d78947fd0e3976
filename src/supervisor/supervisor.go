// Package supervisor implements the optional networked checkpoint broker
// described in §4.2.2/§5: a single relational checkpoint store shared by
// any number of runner processes over a trivial line-oriented TCP protocol
// ("resume:", "save:<i>:<w>", and the reserved-but-unimplemented
// "mandate:"/"validate:" commands), grounded on
// original_source/supervisor.c and socket.c.
package supervisor

import (
	"bufio"
	"fmt"
	"math/big"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"lcs35/src/checkpoint"
	"lcs35/src/session"
)

// bufferSize mirrors the original's fixed 1024-byte read buffer; commands
// and their replies never need to exceed it (t, i, and w together are well
// under a kilobyte even at 2048-bit precision).
const bufferSize = 1024

// Serve accepts connections on listener until it is closed, handling each
// one according to the line protocol against the relational checkpoint
// store at dbPath. It blocks; callers typically run it in its own
// goroutine or as the entire body of a supervisor command.
func Serve(listener net.Listener, dbPath string) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "supervisor: accept")
		}
		go func() {
			defer conn.Close()
			handleClient(conn, dbPath)
		}()
	}
}

// handleClient processes a single command and closes over any error by
// reporting it to stderr; a per-connection failure is not fatal to the
// listen loop, mirroring original_source/supervisor.c's handle_client,
// whose errors are logged and whose connection is simply dropped.
func handleClient(conn net.Conn, dbPath string) {
	if err := dispatch(conn, dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "supervisor:", err)
	}
}

func dispatch(conn net.Conn, dbPath string) error {
	buf := make([]byte, bufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return errors.Wrap(err, "reading command")
	}
	command := string(buf[:n])

	switch {
	case strings.HasPrefix(command, "resume:"):
		return handleResume(conn, dbPath)
	case strings.HasPrefix(command, "save:"):
		return handleSave(dbPath, strings.TrimPrefix(command, "save:"))
	case strings.HasPrefix(command, "mandate:"), strings.HasPrefix(command, "validate:"):
		// reserved verbs: the original supervisor recognises them but never
		// implements a handler either; reply honestly instead of hanging up
		// the caller's read.
		_, err := conn.Write([]byte("not implemented"))
		return errors.Wrap(err, "writing stub reply")
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

// handleResume answers with the most recent (i, w) pair in the relational
// store, or (0, 2) if the store has no checkpoints yet, matching
// db_get_last_i_w's empty-database behaviour.
func handleResume(conn net.Conn, dbPath string) error {
	checkpoints, err := checkpoint.ListCheckpoints(dbPath)
	if err != nil {
		return errors.Wrap(err, "listing checkpoints")
	}

	i := uint64(0)
	w := big.NewInt(2)
	if len(checkpoints) > 0 {
		last := checkpoints[len(checkpoints)-1]
		i, w = last.I, last.W
	}

	reply := fmt.Sprintf("%#x:%s", i, w.String())
	_, err = conn.Write([]byte(reply))
	return errors.Wrap(err, "writing resume reply")
}

// handleSave parses "<i>:<w>" (i in the hex-or-decimal form strtoul(...,
// 0) accepts) and appends it as a new checkpoint, rejecting the pair if it
// fails the consistency check (original db_append_i_w's "quick ugly check
// of consistency").
func handleSave(dbPath, rest string) error {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return errors.New("save command missing colon-separated w")
	}

	i, err := parseFlexibleUint(parts[0])
	if err != nil {
		return errors.Wrap(err, "parsing i")
	}
	w, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return errors.New("parsing w")
	}

	s := session.New()
	s.I = i
	s.W = w
	s.RefreshNTimesC()

	if !session.Check(s) {
		return errors.New("invalid (i, w) pair")
	}

	return checkpoint.Save(s, dbPath, checkpoint.FormatRelational)
}

// parseFlexibleUint accepts either a "0x"-prefixed hex field or a plain
// decimal one, mirroring strtoul(str, &end, 0).
func parseFlexibleUint(field string) (uint64, error) {
	if hex := strings.TrimPrefix(field, "0x"); hex != field {
		return strconv.ParseUint(hex, 16, 64)
	}
	return strconv.ParseUint(field, 10, 64)
}

// Dial connects to a supervisor at addr and issues the "resume:" command,
// returning the resumed session (grounded on original_source/work.c's
// get_work).
func Dial(addr string) (*session.Session, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "supervisor: connecting")
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("resume:")); err != nil {
		return nil, errors.Wrap(err, "supervisor: sending resume command")
	}

	reader := bufio.NewReader(conn)
	buf := make([]byte, bufferSize)
	n, err := reader.Read(buf)
	if err != nil {
		return nil, errors.Wrap(err, "supervisor: reading resume reply")
	}

	return parseResumeReply(buf[:n])
}

func parseResumeReply(data []byte) (*session.Session, error) {
	text := string(data)
	idx := strings.IndexByte(text, ':')
	if idx < 0 {
		return nil, errors.New("supervisor: missing colon after i in reply")
	}

	i, err := parseFlexibleUint(text[:idx])
	if err != nil {
		return nil, errors.Wrap(err, "supervisor: parsing i")
	}
	w, ok := new(big.Int).SetString(text[idx+1:], 10)
	if !ok {
		return nil, errors.New("supervisor: parsing w")
	}

	s := session.New()
	s.I = i
	s.W = w
	s.RefreshNTimesC()

	if !session.Check(s) {
		return nil, errors.New("supervisor: inconsistent reply")
	}
	return s, nil
}

// SaveRemote issues the "save:<i>:<w>" command to a supervisor, the
// network-backed counterpart of checkpoint.Save (original_source/work.c's
// save_work).
func SaveRemote(addr string, s *session.Session) error {
	if !session.Check(s) {
		return errors.New("supervisor: refusing to save an inconsistent session")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "supervisor: connecting")
	}
	defer conn.Close()

	msg := fmt.Sprintf("save:%#x:%s", s.I, s.W.String())
	_, err = conn.Write([]byte(msg))
	return errors.Wrap(err, "supervisor: sending save command")
}

// Listen opens a TCP listener on addr for use with Serve.
func Listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	return l, errors.Wrap(err, "supervisor: listening")
}
