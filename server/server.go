package server

import (
	"net"
	"strconv"

	"github.com/cyberinferno/sudokunet/config"
	"github.com/cyberinferno/sudokunet/game"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/tcpserver"
)

// New builds a stopped TCP server on host:cfg.Server.Port whose handlers all
// share reg.
//
// Parameters:
//   - host: Bind address, e.g. 127.0.0.1
//   - cfg: Loaded configuration
//   - reg: Shared registry
//   - log: Parent logger
//
// Returns:
//   - A TCPServer; call Start, then Stop on shutdown
func New(host string, cfg config.Config, reg *game.Registry, log logger.Logger) *tcpserver.TCPServer {
	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	writeTimeout := cfg.Server.WriteTimeout

	return tcpserver.New(cfg.Server.Name, addr, func(id uint32, conn net.Conn) tcpserver.ConnHandler {
		return NewHandler(id, conn, reg, writeTimeout, log)
	}, log.With(logger.Field{Key: "component", Value: "tcpserver"}))
}
