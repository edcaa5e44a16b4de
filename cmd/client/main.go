// Command gridwalk-client is a thin external collaborator: it joins the
// control socket, issues one scripted command, prints the reply, and exits.
// The interactive menu/terminal UI is out of core scope (spec.md §1
// Non-goals); this is a scriptable building block for automation and for
// exercising the server from the command line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/ocx/gridwalk/internal/clientio"
	"github.com/ocx/gridwalk/internal/protocol"
)

const defaultTimeout = 5 * time.Second

func main() {
	socketPath := flag.String("socket", "/tmp/rw_test.sock", "path to the server's Unix domain socket")
	cmd := flag.String("cmd", "status", "command: status|create|load-world|start|restart|stop|snapshot|save|load-results|set-mode|quit")
	width := flag.Uint("width", 32, "world width (create)")
	height := flag.Uint("height", 32, "world height (create)")
	kind := flag.String("kind", "WRAP", "world kind: WRAP|OBSTACLES (create)")
	k := flag.Uint64("k", 10000, "step cap K (create)")
	reps := flag.Uint("reps", 100, "total replications (create, restart)")
	probUp := flag.Float64("prob-up", 0.25, "P(up) (create)")
	probDown := flag.Float64("prob-down", 0.25, "P(down) (create)")
	probLeft := flag.Float64("prob-left", 0.25, "P(left) (create)")
	probRight := flag.Float64("prob-right", 0.25, "P(right) (create)")
	multiUser := flag.Bool("multi-user", false, "multi_user flag (create, load-world)")
	path := flag.String("path", "", "file key (load-world, save, load-results)")
	mode := flag.String("mode", "INTERACTIVE", "display mode: INTERACTIVE|SUMMARY (set-mode)")
	stopIfOwner := flag.Bool("stop-if-owner", false, "request stop on quit if we hold ownership (quit)")
	timeout := flag.Duration("timeout", defaultTimeout, "reply timeout")
	flag.Parse()

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		log.Fatalf("client: dial %q: %v", *socketPath, err)
	}
	defer conn.Close()

	pid := uint32(os.Getpid())
	if err := protocol.Send(conn, protocol.MsgJoin, protocol.JoinPayload{PID: pid}.Marshal()); err != nil {
		log.Fatalf("client: join: %v", err)
	}
	welcomeMsg, err := protocol.RecvMessage(conn)
	if err != nil || welcomeMsg.Type != protocol.MsgWelcome {
		log.Fatalf("client: expected WELCOME, got type=%v err=%v", welcomeMsg.Type, err)
	}
	welcome, err := protocol.UnmarshalWelcome(welcomeMsg.Payload)
	if err != nil {
		log.Fatalf("client: malformed WELCOME: %v", err)
	}
	printJSON("welcome", welcome)

	disp := clientio.New(conn, func(msgType protocol.MessageType, payload []byte) {
		fmt.Fprintf(os.Stderr, "[async] %s\n", msgType)
	})

	switch *cmd {
	case "status":
		runRequest(disp, *timeout, protocol.MsgQueryStatus, protocol.QueryStatusPayload{PID: pid}.Marshal(),
			[]protocol.MessageType{protocol.MsgStatus, protocol.MsgError}, decodeStatus)

	case "create":
		wk := protocol.WireWrap
		if *kind == "OBSTACLES" {
			wk = protocol.WireObstacles
		}
		payload := protocol.CreateSimPayload{
			Kind: wk, Width: uint32(*width), Height: uint32(*height),
			Probs:     protocol.MoveProbsWire{Up: *probUp, Down: *probDown, Left: *probLeft, Right: *probRight},
			K:         *k,
			TotalReps: uint32(*reps),
			MultiUser: *multiUser,
		}.Marshal()
		runRequest(disp, *timeout, protocol.MsgCreateSim, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "load-world":
		payload := protocol.LoadWorldPayload{Path: *path, MultiUser: *multiUser}.Marshal()
		runRequest(disp, *timeout, protocol.MsgLoadWorld, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "start":
		runRequest(disp, *timeout, protocol.MsgStartSim, nil,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "restart":
		payload := protocol.RestartSimPayload{TotalReps: uint32(*reps)}.Marshal()
		runRequest(disp, *timeout, protocol.MsgRestartSim, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "stop":
		payload := protocol.StopSimPayload{PID: pid}.Marshal()
		runRequest(disp, *timeout, protocol.MsgStopSim, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "save":
		payload := protocol.SaveResultsPayload{Path: *path}.Marshal()
		runRequest(disp, *timeout, protocol.MsgSaveResults, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "load-results":
		payload := protocol.LoadResultsPayload{Path: *path}.Marshal()
		runRequest(disp, *timeout, protocol.MsgLoadResults, payload,
			[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, decodeAckOrError)

	case "set-mode":
		m := protocol.ModeInteractive
		if *mode == "SUMMARY" {
			m = protocol.ModeSummary
		}
		// SET_GLOBAL_MODE carries no reply; fire and wait briefly for any
		// GLOBAL_MODE_CHANGED echo on the async channel.
		if err := protocol.Send(conn, protocol.MsgSetGlobalMode, protocol.SetGlobalModePayload{Mode: m}.Marshal()); err != nil {
			log.Fatalf("client: set-mode: %v", err)
		}
		time.Sleep(100 * time.Millisecond)

	case "snapshot":
		runSnapshot(disp, *timeout, pid)

	case "quit":
		payload := protocol.QuitPayload{PID: pid, StopIfOwner: *stopIfOwner}.Marshal()
		runRequest(disp, *timeout, protocol.MsgQuit, payload,
			[]protocol.MessageType{protocol.MsgAck}, decodeAckOrError)

	default:
		log.Fatalf("client: unknown -cmd %q", *cmd)
	}
}

func runRequest(disp *clientio.Dispatcher, timeout time.Duration, msgType protocol.MessageType, payload []byte, expected []protocol.MessageType, decode func(protocol.MessageType, []byte) (interface{}, error)) {
	respType, respPayload, err := disp.SendAndWait(msgType, payload, expected, timeout)
	if err != nil {
		log.Fatalf("client: request %s failed: %v", msgType, err)
	}
	out, err := decode(respType, respPayload)
	if err != nil {
		log.Fatalf("client: decode %s reply: %v", respType, err)
	}
	printJSON(fmt.Sprintf("%s", respType), out)
}

func runSnapshot(disp *clientio.Dispatcher, timeout time.Duration, pid uint32) {
	payload := protocol.RequestSnapshotPayload{PID: pid}.Marshal()
	respType, respPayload, err := disp.SendAndWait(protocol.MsgRequestSnapshot, payload,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, timeout)
	if err != nil {
		log.Fatalf("client: snapshot request failed: %v", err)
	}
	if respType == protocol.MsgError {
		out, _ := decodeAckOrError(respType, respPayload)
		printJSON("error", out)
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		if assembly, ok := disp.Assembler().Completed(); ok {
			printJSON("snapshot", map[string]interface{}{
				"id":              assembly.ID,
				"cell_count":      assembly.CellCount,
				"included_fields": assembly.IncludedFields,
				"fields":          len(assembly.Fields),
			})
			return
		}
		if time.Now().After(deadline) {
			log.Fatalf("client: snapshot assembly timed out")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func decodeStatus(_ protocol.MessageType, payload []byte) (interface{}, error) {
	return protocol.UnmarshalStatus(payload)
}

func decodeAckOrError(msgType protocol.MessageType, payload []byte) (interface{}, error) {
	if msgType == protocol.MsgError {
		return protocol.UnmarshalError(payload)
	}
	return protocol.UnmarshalAck(payload)
}

func printJSON(label string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: %+v\n", label, v)
		return
	}
	fmt.Printf("%s: %s\n", label, data)
}
