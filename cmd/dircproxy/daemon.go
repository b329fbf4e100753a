package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// daemonizedEnv marks a re-exec'd child so detachFromTerminal only forks
// once even if -D is left set in the environment for restarts.
const daemonizedEnv = "DIRCPROXY_DAEMONIZED"

// detachFromTerminal re-execs the current process with its standard file
// descriptors redirected to /dev/null and in a new session, then exits the
// parent (spec.md §8 "-D background mode"). Go has no direct fork(2)
// binding, so a self re-exec stands in for the traditional double-fork.
func detachFromTerminal() error {
	if os.Getenv(daemonizedEnv) == "1" {
		_, err := syscall.Setsid()
		return err
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	defer devNull.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonizedEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	fmt.Fprintf(os.Stderr, "dircproxy: backgrounded as pid %d\n", cmd.Process.Pid)
	os.Exit(exitOK)
	return nil
}

// switchUser drops privileges to the named user after the listen socket is
// already bound, matching the original switch_user directive. Resolving a
// username to uid/gid needs cgo on most platforms, so this accepts a bare
// numeric uid[:gid] as the portable subset; anything else is logged by the
// caller and left alone.
func switchUser(spec string) error {
	uid, gid, err := parseUserSpec(spec)
	if err != nil {
		return err
	}
	if gid >= 0 {
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid(%d): %w", gid, err)
		}
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid(%d): %w", uid, err)
	}
	return nil
}

func parseUserSpec(spec string) (uid, gid int, err error) {
	gid = -1
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			uid, err = strconv.Atoi(spec[:i])
			if err != nil {
				return 0, 0, fmt.Errorf("switch_user %q: %w", spec, err)
			}
			gid, err = strconv.Atoi(spec[i+1:])
			if err != nil {
				return 0, 0, fmt.Errorf("switch_user %q: %w", spec, err)
			}
			return uid, gid, nil
		}
	}
	uid, err = strconv.Atoi(spec)
	if err != nil {
		return 0, 0, fmt.Errorf("switch_user %q: numeric uid[:gid] required", spec)
	}
	return uid, -1, nil
}
