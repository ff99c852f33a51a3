// Command stcored is the runtime daemon: it loads a compiled program,
// reads runtime.toml/io.toml-shaped configuration, wires up the I/O
// subsystem and control server, and drives the tick loop against real
// wall-clock time.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ironrail/stcore/engine"
	"github.com/ironrail/stcore/internal/config"
	"github.com/ironrail/stcore/internal/control"
	"github.com/ironrail/stcore/internal/format"
	"github.com/ironrail/stcore/internal/value"
)

var (
	programPath = flag.String("program", "", "path to a compiled program file")
	runtimeCfg  = flag.String("runtime-config", "", "path to runtime.toml-shaped config")
	ioCfg       = flag.String("io-config", "", "path to io.toml-shaped config")
	cycleTime   = flag.Duration("cycle", 10*time.Millisecond, "wall-clock cycle period")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("stcored: ")
	flag.Parse()

	if *programPath == "" {
		log.Fatalf("-program is required")
	}

	data, err := os.ReadFile(*programPath)
	if err != nil {
		log.Fatalf("read program: %v", err)
	}
	mod, err := format.Decode(data)
	if err != nil {
		log.Fatalf("decode program: %v", err)
	}
	prog, err := format.Materialize(mod)
	if err != nil {
		log.Fatalf("materialize program: %v", err)
	}

	rtCfg, err := loadRuntimeConfig(*runtimeCfg)
	if err != nil {
		log.Fatalf("load runtime config: %v", err)
	}
	ioCfgVal, err := loadIoConfig(*ioCfg)
	if err != nil {
		log.Fatalf("load io config: %v", err)
	}

	faultPolicy, err := mod.FaultPolicy()
	if err != nil {
		log.Fatalf("resolve fault policy: %v", err)
	}
	if rtCfg.FaultPolicy != "" {
		if faultPolicy, err = parseFaultPolicy(rtCfg.FaultPolicy); err != nil {
			log.Fatalf("resolve fault policy: %v", err)
		}
	}

	retainSaveIntervalNs := rtCfg.RetainSaveInterval.Nanoseconds()
	if retainSaveIntervalNs == 0 {
		retainSaveIntervalNs = mod.Resource.RetainSaveIntervalMs * int64(time.Millisecond)
	}

	rt, err := engine.New(engine.Config{
		Program:              prog,
		Profile:              value.DefaultProfile(),
		FaultPolicy:          faultPolicy,
		Tasks:                mod.Tasks(),
		RetainPath:           rtCfg.RetainPath,
		RetainSaveIntervalNs: retainSaveIntervalNs,
		Logger:               log.Default(),
	})
	if err != nil {
		log.Fatalf("construct runtime: %v", err)
	}

	if err := engine.BindIo(rt.IoSubsystem(), mod); err != nil {
		log.Fatalf("bind io: %v", err)
	}
	for _, dc := range ioCfgVal.Drivers {
		d, err := newConfiguredDriver(dc)
		if err != nil {
			log.Fatalf("driver %q: %v", dc.Name, err)
		}
		rt.IoSubsystem().Register(d, driverErrorPolicy(dc))
	}

	srv := control.NewServer(rt, log.Default())
	rt.SetControlServer(srv)
	startControlListeners(srv, rtCfg)

	log.Printf("stcored started: cycle=%s fault_policy=%s", *cycleTime, faultPolicy)
	runTickLoop(rt, *cycleTime)
}

func loadRuntimeConfig(path string) (config.Runtime, error) {
	if path == "" {
		return config.Runtime{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config.Runtime{}, err
	}
	defer f.Close()
	return config.LoadRuntime(f)
}

func loadIoConfig(path string) (config.IO, error) {
	if path == "" {
		return config.IO{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config.IO{}, err
	}
	defer f.Close()
	return config.LoadIO(f)
}

func startControlListeners(srv *control.Server, rtCfg config.Runtime) {
	if rtCfg.ControlSocket != "" {
		l, err := control.ListenUnix(rtCfg.ControlSocket)
		if err != nil {
			log.Fatalf("listen control socket: %v", err)
		}
		go func() {
			if err := srv.Serve(l, control.TransportUnix); err != nil {
				log.Printf("control socket listener stopped: %v", err)
			}
		}()
	}
	if rtCfg.ControlTcpAddr != "" {
		srv.AuthToken = rtCfg.ControlTcpAuthToken
		l, err := control.ListenTCP(rtCfg.ControlTcpAddr)
		if err != nil {
			log.Fatalf("listen control tcp: %v", err)
		}
		go func() {
			if err := srv.Serve(l, control.TransportTCP); err != nil {
				log.Printf("control tcp listener stopped: %v", err)
			}
		}()
	}
}

// runTickLoop drives rt's ManualClock in lockstep with wall-clock time:
// each tick advances the clock by exactly one cycle period, the way a
// real scan-cycle PLC runtime is driven in production while keeping the
// scheduler's own clock abstraction test-deterministic (see
// internal/scheduler's ManualClock doc comment).
func runTickLoop(rt *engine.Runtime, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		if err := rt.Advance(period.Nanoseconds()); err != nil {
			log.Printf("tick error: %v", err)
		}
	}
}
