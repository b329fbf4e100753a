// Command dircproxy is the bouncer's command-line front end: flag
// parsing, config file discovery, daemonization, pid-file and signal
// handling (spec.md §8 "Command-line").
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/presbrey/dircproxy/internal/adminhttp"
	"github.com/presbrey/dircproxy/internal/bouncer"
	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/netio"
	"github.com/presbrey/dircproxy/internal/resolver"
)

// version is set via -ldflags "-X main.version=..." by release builds;
// "dev" covers local builds.
var version = "dev"

// sysconfDefault is the build-time SYSCONFDIR fallback for the config
// file when no per-user ~/.dircproxyrc is usable (spec.md §8).
const sysconfDefault = "/etc/dircproxyrc"

const (
	exitOK = iota
	exitUsage
	exitBadConfig
	exitListenFailure
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dircproxy", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		configPath  = fs.String("f", "", "configuration file path")
		portOverride = fs.Int("P", 0, "override listen_port")
		pidOverride = fs.String("p", "", "override pid file path")
		background  = fs.Bool("D", false, "toggle background/daemon mode")
		inetd       = fs.Bool("I", false, "inetd mode: stdin is an already-accepted client socket")
		showVersion = fs.Bool("v", false, "print version and exit")
		showHelp    = fs.Bool("h", false, "print usage and exit")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *showHelp {
		fs.Usage()
		return exitOK
	}
	if *showVersion {
		fmt.Printf("dircproxy %s\n", version)
		return exitOK
	}

	logger := log.New(os.Stderr, "dircproxy: ", log.Lshortfile|log.Lmicroseconds)

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		logger.Println(err)
		return exitBadConfig
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}

	cfg, err := config.ParseFile(path)
	if err != nil {
		logger.Printf("config: %v", err)
		return exitBadConfig
	}
	if err := config.ApplyEnvOverlay(cfg); err != nil {
		logger.Printf("config: env overlay: %v", err)
		return exitBadConfig
	}
	if *portOverride != 0 {
		cfg.ListenPort = *portOverride
	}
	if *pidOverride != "" {
		cfg.PidFile = *pidOverride
	}
	if err := config.ValidateClasses(cfg.Classes); err != nil {
		logger.Printf("config: %v", err)
		return exitBadConfig
	}

	daemonize := !*background // -D toggles the compiled-in default (daemonize into the background)
	if *inetd {
		daemonize = false
	}
	if daemonize {
		if err := detachFromTerminal(); err != nil {
			logger.Printf("daemonize: %v (continuing in foreground)", err)
		}
	}

	if cfg.PidFile != "" {
		if err := writePidFile(cfg.PidFile); err != nil {
			logger.Printf("pid file: %v", err)
		} else {
			defer os.Remove(cfg.PidFile)
		}
	}

	if sw := switchUserFromClasses(cfg.Classes); sw != "" {
		if err := switchUser(sw); err != nil {
			logger.Printf("switch_user %s: %v", sw, err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := adminhttp.NewMetrics(reg)
	registry := bouncer.NewRegistry()

	deps := bouncer.Deps{
		Classes:        cfg.Classes,
		Verifier:       config.BcryptVerifier{},
		Registry:       registry,
		Timers:         netio.NewTimers(),
		Resolver:       resolver.New(cfg.DNSTimeout),
		ConnectTimeout: cfg.ClientTimeout,
		Logger:         logger,
	}

	if *inetd {
		conn := &stdioConn{}
		bouncer.HandleClientConn(conn, deps)
		return exitOK
	}

	adminSrv := adminhttp.New(reg, registry)
	adminAddr := fmt.Sprintf(":%d", cfg.ListenPort+1)
	go func() {
		logger.Printf("admin http listening on %s", adminAddr)
		if err := http.ListenAndServe(adminAddr, adminSrv); err != nil {
			logger.Printf("admin http: %v", err)
		}
	}()

	listenAddr := fmt.Sprintf(":%d", cfg.ListenPort)
	listener, err := bouncer.Listen(listenAddr, func(conn net.Conn) {
		metrics.ClientConnects.Inc()
		bouncer.HandleClientConn(conn, deps)
	})
	if err != nil {
		logger.Printf("listen %s: %v", listenAddr, err)
		return exitListenFailure
	}
	logger.Printf("listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGPIPE)

	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.Serve() }()

	for {
		select {
		case err := <-serveErr:
			if err != nil {
				logger.Printf("serve: %v", err)
			}
			return exitOK
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Println("SIGHUP received: reload is a no-op until a running config swap lands")
			default:
				logger.Printf("%s received: shutting down", sig)
				listener.Close()
				deadline := time.Now().Add(5 * time.Second)
				for _, s := range registry.All() {
					if s.ClientSocket != nil {
						s.ClientSocket.WaitDrained(deadline)
					}
				}
				return exitOK
			}
		}
	}
}

// resolveConfigPath implements spec.md §8's discovery order: an explicit
// -f path wins outright; otherwise ~/.dircproxyrc is used only if its mode
// bits are 0700 or tighter, falling back to the SYSCONFDIR-wide config.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err == nil {
		candidate := filepath.Join(home, ".dircproxyrc")
		if fi, statErr := os.Stat(candidate); statErr == nil {
			if fi.Mode().Perm()&^0700 != 0 {
				return "", fmt.Errorf("%s: mode %04o is too permissive (must be <= 0700)", candidate, fi.Mode().Perm())
			}
			return candidate, nil
		}
	}
	if _, err := os.Stat(sysconfDefault); err == nil {
		return sysconfDefault, nil
	}
	return "", fmt.Errorf("no config file found (tried ~/.dircproxyrc and %s)", sysconfDefault)
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// switchUserFromClasses returns the first non-empty switch_user directive
// across all classes; dircproxy applies it once, globally, after binding
// the listen port.
func switchUserFromClasses(classes []*config.ConnectionClass) string {
	for _, c := range classes {
		if c.SwitchUser != "" {
			return c.SwitchUser
		}
	}
	return ""
}
