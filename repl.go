package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
	"golang.org/x/sys/unix"

	"github.com/mstarongithub/cwc/comp"
	"github.com/mstarongithub/cwc/repl"
	"github.com/mstarongithub/cwc/util"
	"github.com/mstarongithub/cwc/util/wrappers"
	"github.com/mstarongithub/cwc/wayland"
)

// demoClient is an in-process client driven from the repl. It exercises the
// whole object graph the way a wire client would: compositor, shm pool,
// buffer, surface, output binding.
type demoClient struct {
	conn    *wayland.LocalClient
	state   *comp.ClientState
	surface *comp.Surface
}

func replRunner(server *comp.Server) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))
	demos := []*demoClient{}
	watching := false

	logrus.Debugln("Starting repl")
	_ = commandRepl.Run(func(input string, r *repl.Repl) (string, error) {
		var cmd, arg string
		util.Unpack(strings.Fields(input), &cmd, &arg)

		switch cmd {
		case "", "help":
			return helpMessage(), nil
		case "clients":
			return listClients(server), nil
		case "outputs":
			return listOutputs(server), nil
		case "modes":
			if arg == "" {
				return "Output has to be specified", nil
			}
			return listModes(server, arg), nil
		case "stats":
			snap := server.Snapshot()
			return fmt.Sprintf("clients %d, surfaces %d, pools %d, buffers %d, mapped %s, up %s",
				snap.Clients, snap.Surfaces, snap.Pools, snap.Buffers,
				util.FormatBytes(snap.MappedBytes), snap.Uptime.Round(time.Second)), nil
		case "spawn":
			demo, err := spawnDemoClient(server)
			if err != nil {
				return fmt.Sprintf("spawn failed: %s", err), nil
			}
			demos = append(demos, demo)
			return fmt.Sprintf("demo client %d up, surface committed", demo.state.ID()), nil
		case "disconnect":
			if len(demos) == 0 {
				return "no demo clients", nil
			}
			demo := demos[len(demos)-1]
			demos = demos[:len(demos)-1]
			demo.conn.Disconnect()
			return fmt.Sprintf("demo client %d disconnected", demo.state.ID()), nil
		case "watch":
			if watching {
				return "already watching", nil
			}
			ch, err := server.Events().MakeReceiver("repl", 32)
			if err != nil {
				return fmt.Sprintf("watch failed: %s", err), nil
			}
			watching = true
			go func() {
				for ev := range ch {
					line := fmt.Sprintf("[event] %s", ev.Kind)
					if ev.Client != 0 {
						line += fmt.Sprintf(" client=%d", ev.Client)
					}
					if ev.Detail != "" {
						line += " " + ev.Detail
					}
					_ = r.Println(line)
				}
			}()
			return "watching lifecycle events, 'unwatch' to stop", nil
		case "unwatch":
			if !watching {
				return "not watching", nil
			}
			server.Events().CloseReceiver("repl")
			watching = false
			return "stopped watching", nil
		case "quit", "exit":
			for _, demo := range demos {
				demo.conn.Disconnect()
			}
			r.Input.Close()
			return "bye", nil
		default:
			return fmt.Sprintf("unknown command %q, try 'help'", cmd), nil
		}
	})
}

func helpMessage() string {
	return strings.Join([]string{
		"Commands:",
		"\tclients              List connected clients",
		"\toutputs              List configured outputs",
		"\tmodes <output>       Show the mode of an output",
		"\tstats                Live object counts",
		"\tspawn                Start an in-process demo client",
		"\tdisconnect           Disconnect the newest demo client",
		"\twatch / unwatch      Stream lifecycle events",
		"\tquit                 Close the repl and shut down",
	}, "\n")
}

func listClients(server *comp.Server) string {
	clients := server.Clients()
	if len(clients) == 0 {
		return "no clients connected"
	}
	lines := make([]string, 0, len(clients))
	for _, state := range clients {
		lines = append(lines, fmt.Sprintf("client %d: %d surfaces, %d pools",
			state.ID(), state.SurfaceCount(), state.PoolCount()))
	}
	return strings.Join(lines, "\n")
}

func listOutputs(server *comp.Server) string {
	lines := []string{}
	for i, output := range server.Outputs() {
		lines = append(lines, fmt.Sprintf("Output %v: %s (%d bindings)", i, output.Name(), output.BindingCount()))
	}
	return strings.Join(lines, "\n")
}

func listModes(server *comp.Server, outputName string) string {
	filtered := sliceutils.Filter(server.Outputs(), func(output *comp.Output) bool {
		return output.Name() == outputName
	})
	if len(filtered) == 0 {
		return fmt.Sprintf("Output %s not found", outputName)
	}
	conf := filtered[0].Config()
	return fmt.Sprintf("\t- %dx%d@%d (current, preferred)", conf.Width, conf.Height, conf.RefreshRate)
}

// spawnDemoClient connects a local client and pushes one 32x32 ARGB frame
// through a freshly mapped 4KiB pool.
func spawnDemoClient(server *comp.Server) (*demoClient, error) {
	conn := wayland.NewLocalClient()
	state, err := server.AdmitClient(conn)
	if err != nil {
		return nil, err
	}

	compositor := server.BindCompositor(state, conn.NewResource(6))
	shm := server.BindShm(state, conn.NewResource(1))
	for _, output := range server.Outputs() {
		server.BindOutput(state, output, conn.NewResource(4))
	}

	const poolSize = 4096
	fd, err := unix.MemfdCreate("cwc-demo", unix.MFD_CLOEXEC)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err = unix.Ftruncate(fd, poolSize); err != nil {
		unix.Close(fd)
		conn.Disconnect()
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	pool, err := shm.CreatePool(conn.NewResource(1), fd, poolSize)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	buffer, err := pool.CreateBuffer(conn.NewResource(1), 0, 32, 32, 128, wayland.FormatARGB8888)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	surface, err := compositor.CreateSurface(conn.NewResource(6))
	if err != nil {
		conn.Disconnect()
		return nil, err
	}

	surface.Attach(buffer, 0, 0)
	surface.AddDamage(0, 0, 32, 32)
	if err = surface.Commit(); err != nil {
		conn.Disconnect()
		return nil, err
	}
	return &demoClient{conn: conn, state: state, surface: surface}, nil
}
