package bouncer

import (
	"fmt"
	"os"
	"strings"
)

// motdLogo is the banner spec.md §6's motd_logo flag enables (original
// dircproxy shipped an ASCII-art banner here; ours is plainer but still a
// fixed constant so output is deterministic).
const motdLogo = `
      _ _
   __| (_)_ __ ___ _ __  _ __ _____  ___   _
  / _` + "`" + ` | | '__/ __| '_ \| '__/ _ \ \/ / | | |
 | (_| | | | | (__| |_) | | | (_) >  <| |_| |
  \__,_|_|_|  \___| .__/|_|  \___/_/\_\\__, |
                   |_|                 |___/ `

// BuildMOTD assembles the message-of-the-day lines delivered on attach
// (spec.md §4.3 "deliver welcome ... plus MOTD (§6)"), honoring
// motd_logo, motd_file, and motd_stats.
func BuildMOTD(s *Session) []string {
	var lines []string
	if s.Class.MotdLogo {
		lines = append(lines, strings.Split(motdLogo, "\n")...)
	}
	if s.Class.MotdFile != "" {
		if data, err := os.ReadFile(s.Class.MotdFile); err == nil {
			lines = append(lines, strings.Split(strings.TrimRight(string(data), "\n"), "\n")...)
		}
	}
	if s.Class.MotdStats {
		lines = append(lines, fmt.Sprintf("Connected as %s, server status: %s, channels: %d",
			s.Nickname, s.ServerStatus.String(), len(s.Channels.Joined())))
	}
	return lines
}
