// Command bridgedemo wires DemoRoot up on the transport adapters this
// repository ships and drives a client proxy through every operation kind
// the bridge supports, end to end in a single process. Configuration is
// resolved in priority order: a command-line path, then a conventional
// default file, then hardcoded defaults.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathe42/comlink2/config"
	"github.com/mathe42/comlink2/dispatch"
	"github.com/mathe42/comlink2/internal/telemetry"
	"github.com/mathe42/comlink2/proxy"
	"github.com/mathe42/comlink2/transport"
)

func main() {
	var cfg *config.Config
	var configSource string

	if len(os.Args) >= 2 {
		loadedCfg, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", os.Args[1], err)
		}
		cfg = loadedCfg
		configSource = fmt.Sprintf("config file: %s", os.Args[1])
	} else if _, err := os.Stat("config/bridgedemo.yaml"); err == nil {
		loadedCfg, err := config.Load("config/bridgedemo.yaml")
		if err != nil {
			log.Printf("warning: config/bridgedemo.yaml exists but failed to load: %v", err)
			cfg = defaultConfig()
			configSource = "hardcoded defaults (config/bridgedemo.yaml failed to parse)"
		} else {
			cfg = loadedCfg
			configSource = "config/bridgedemo.yaml"
		}
	} else {
		cfg = defaultConfig()
		configSource = "hardcoded defaults"
	}

	log.Printf("starting %s using %s", cfg.AppName, configSource)

	logger, err := telemetry.New(cfg.Logging.Dir, cfg.Logging.Quiet)
	if err != nil {
		log.Fatalf("failed to start session logger: %v", err)
	}
	defer logger.Close()

	switch cfg.Transport.Kind {
	case "tcp":
		runTCP(cfg, logger)
	case "tcp-msgpack":
		runTCPMsgpack(cfg, logger)
	default:
		runInmem(logger)
	}
}

func defaultConfig() *config.Config {
	return &config.Config{
		AppName:   "bridgedemo",
		Transport: config.TransportConfig{Kind: "inmem"},
		Logging:   config.LoggingConfig{Dir: "./logs"},
	}
}

// runInmem exposes and wraps DemoRoot over a single in-process endpoint
// pair, then drives every operation kind synchronously.
func runInmem(logger *telemetry.Logger) {
	serverEP, clientEP := transport.NewPair()
	defer serverEP.Close()
	defer clientEP.Close()

	root := &DemoRoot{Version: "1.0"}
	stop, err := dispatch.ExposeLogging(root, serverEP, logger)
	if err != nil {
		log.Fatalf("expose failed: %v", err)
	}
	defer stop()

	p := proxy.WrapLogging(clientEP, logger)
	runScenarios(p, logger)
}

// runTCP exposes DemoRoot behind a TCP listener and connects a client
// proxy to it over a real socket, exercising the JSON-framed adapter.
func runTCP(cfg *config.Config, logger *telemetry.Logger) {
	addr := cfg.Transport.Address

	go func() {
		err := transport.Listen(addr, func(conn *transport.TCPJSONEndpoint) {
			root := &DemoRoot{Version: "1.0"}
			if _, err := dispatch.ExposeLogging(root, conn, logger); err != nil {
				log.Printf("expose failed: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("listen on %s failed: %v", addr, err)
		}
	}()

	// Brief delay to let the listener come up before the client dials.
	time.Sleep(100 * time.Millisecond)

	clientEP, err := transport.Dial(addr)
	if err != nil {
		log.Fatalf("dial %s failed: %v", addr, err)
	}
	defer clientEP.Close()

	p := proxy.WrapLogging(clientEP, logger)
	runScenarios(p, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-time.After(2 * time.Second):
	}
}

// runTCPMsgpack is runTCP's binary-codec sibling, exercising the
// MessagePack-framed TCP adapter instead of the JSON one.
func runTCPMsgpack(cfg *config.Config, logger *telemetry.Logger) {
	addr := cfg.Transport.Address

	go func() {
		err := transport.ListenMsgpack(addr, func(conn *transport.TCPMsgpackEndpoint) {
			root := &DemoRoot{Version: "1.0"}
			if _, err := dispatch.ExposeLogging(root, conn, logger); err != nil {
				log.Printf("expose failed: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("listen on %s failed: %v", addr, err)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	clientEP, err := transport.DialMsgpack(addr)
	if err != nil {
		log.Fatalf("dial %s failed: %v", addr, err)
	}
	defer clientEP.Close()

	p := proxy.WrapLogging(clientEP, logger)
	runScenarios(p, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-time.After(2 * time.Second):
	}
}

// runScenarios drives the bridge through p end to end: an awaited
// property, a plain call, a constructed sub-object whose methods are
// called through its own sub-proxy, and a function argument the server
// calls back into repeatedly.
func runScenarios(p *proxy.Proxy, logger *telemetry.Logger) {
	version, err := p.Get("Version").Await()
	if err != nil {
		log.Fatalf("Version failed: %v", err)
	}
	logger.Info("Version = %v", version)

	sum, err := p.Get("Add").Call(2, 3)
	if err != nil {
		log.Fatalf("Add failed: %v", err)
	}
	logger.Info("Add(2, 3) = %v", sum)

	greeting, err := p.Get("Greet").Call("world")
	if err != nil {
		log.Fatalf("Greet failed: %v", err)
	}
	logger.Info("Greet(\"world\") = %v", greeting)

	counterVal, err := p.Get("NewCounter").Construct(10)
	if err != nil {
		log.Fatalf("NewCounter failed: %v", err)
	}
	counter, ok := counterVal.(*proxy.Proxy)
	if !ok {
		log.Fatalf("NewCounter did not return a wrapped proxy: %T", counterVal)
	}
	defer counter.Release()

	for i := 0; i < 3; i++ {
		v, err := counter.Get("Next").Call()
		if err != nil {
			log.Fatalf("Counter.Next failed: %v", err)
		}
		logger.Info("counter.Next() = %v", v)
	}

	tick := func(n int) int { return n * n }
	watched, err := p.Get("Watch").Call(tick)
	if err != nil {
		log.Fatalf("Watch failed: %v", err)
	}
	logger.Info("Watch(n => n*n) = %v", watched)
}
