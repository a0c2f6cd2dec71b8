// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/sensors"
)

// RegisterAccess is the sensor access used by the debug tool.
type RegisterAccess interface {
	Init() error
	ReadRegister(reg uint16) (byte, error)
	WriteRegister(reg uint16, v byte) error
	ReadAllRegisters() (map[uint16]byte, error)
	ExportRegisterConfig() (map[uint16]byte, error)
	ReadSample() (imu.Sample, error)
}

// RegisterCmd is a request from the debug UI.
type RegisterCmd struct {
	Action  string `json:"action"` // "get_map", "read", "read_all", "write", "init", "export_config"
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterResponse is sent back to the debug UI.
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "status", "export_config", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for bulk read
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Status      string                 `json:"status,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // banked hex address -> hex value
}

const debugDevice = "icm20948"

// RegisterDebug serves the register debug websocket and live data API.
type RegisterDebug struct {
	imu      RegisterAccess
	writable config.Writable
}

// NewRegisterDebug returns handlers over a. Writes are limited to writable.
func NewRegisterDebug(a RegisterAccess, writable config.Writable) *RegisterDebug {
	return &RegisterDebug{imu: a, writable: writable}
}

type registerDebugSession struct {
	*RegisterDebug
	conn *websocket.Conn
}

// HandleWS handles the WebSocket connection for register debugging
func (d *RegisterDebug) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("register_debug: websocket upgrade error")
		return
	}
	defer conn.Close()

	s := &registerDebugSession{RegisterDebug: d, conn: conn}
	if err := s.sendRegisterMap(); err != nil {
		log.WithError(err).Warn("register_debug: error sending register map")
		return
	}

	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("register_debug: websocket error")
			}
			return
		}

		switch cmd.Action {
		case "get_map":
			s.sendRegisterMap()
		case "read":
			s.handleRead(cmd)
		case "read_all":
			s.handleReadAll()
		case "write":
			s.handleWrite(cmd)
		case "init":
			s.handleInit()
		case "export_config":
			s.handleExportConfig()
		case "":
			s.sendError("missing or invalid action field")
		default:
			s.sendError(fmt.Sprintf("unknown action: %s", cmd.Action))
		}
	}
}

// parseHex accepts "0x1F" style values up to bits wide.
func parseHex(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func hexMap(regs map[uint16]byte) map[string]string {
	out := make(map[string]string, len(regs))
	for addr, v := range regs {
		out[sensors.FormatAddr(addr)] = fmt.Sprintf("0x%02X", v)
	}
	return out
}

func (s *registerDebugSession) handleRead(cmd RegisterCmd) {
	addr, err := parseHex(cmd.Address, 16)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}
	value, err := s.imu.ReadRegister(uint16(addr))
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}
	s.conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Address:   sensors.FormatAddr(uint16(addr)),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *registerDebugSession) handleReadAll() {
	registers, err := s.imu.ReadAllRegisters()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}
	s.conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Registers: hexMap(registers),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *registerDebugSession) handleWrite(cmd RegisterCmd) {
	addr, err := parseHex(cmd.Address, 16)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}
	value, err := parseHex(cmd.Value, 8)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", cmd.Value))
		return
	}
	if !s.writable.Allows(uint16(addr)) {
		s.sendError(fmt.Sprintf("register %s not in allowed write ranges", sensors.FormatAddr(uint16(addr))))
		return
	}
	if err := s.imu.WriteRegister(uint16(addr), byte(value)); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}
	log.WithFields(log.Fields{"addr": sensors.FormatAddr(uint16(addr)), "value": fmt.Sprintf("0x%02X", value)}).Info("register_debug: register written")
	s.conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Address:   sensors.FormatAddr(uint16(addr)),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *registerDebugSession) handleInit() {
	if err := s.imu.Init(); err != nil {
		s.sendError(fmt.Sprintf("reinit error: %v", err))
		return
	}
	s.conn.WriteJSON(RegisterResponse{
		Type:    "status",
		Device:  debugDevice,
		Status:  "initialized",
		Message: "IMU reinitialized successfully",
	})
}

func (s *registerDebugSession) handleExportConfig() {
	registers, err := s.imu.ExportRegisterConfig()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}
	now := time.Now()
	configJSON, err := json.Marshal(RegisterConfigFile{
		Version:   1,
		Device:    debugDevice,
		Timestamp: now.Format(time.RFC3339),
		Registers: hexMap(registers),
	})
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}
	s.conn.WriteJSON(RegisterResponse{
		Type:     "export_config",
		Device:   debugDevice,
		Message:  "config exported",
		Config:   string(configJSON),
		Filename: fmt.Sprintf("%s_%s_registers.json", debugDevice, now.Format("20060102_150405")),
	})
}

func (s *registerDebugSession) sendRegisterMap() error {
	regs := sensors.ICM20948RegisterMap()
	sort.Slice(regs, func(i, j int) bool { return regs[i].Addr() < regs[j].Addr() })
	return s.conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      debugDevice,
		RegisterMap: regs,
	})
}

func (s *registerDebugSession) sendError(message string) {
	s.conn.WriteJSON(RegisterResponse{
		Type:    "error",
		Message: message,
	})
}

// HandleIMUData serves one directly read sample via REST API.
func (d *RegisterDebug) HandleIMUData(w http.ResponseWriter, r *http.Request) {
	smp, err := d.imu.ReadSample()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, smp)
}

// RunRegisterDebug opens the sensor and serves the debug tool until ctx
// is done. The page itself is read from web/register_debug.html.
func RunRegisterDebug(ctx context.Context, cfg *config.Config) error {
	src, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	m := sensors.NewManager(src, cfg.IMUIdentityRetries)
	log.Info("register_debug: initializing IMU")
	if err := m.Init(); err != nil {
		log.WithError(err).Warn("register_debug: IMU initialization had issues, use init to retry")
	}

	d := NewRegisterDebug(m, cfg.Writable())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.HandleWS)
	mux.HandleFunc("/api/imu", d.HandleIMUData)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	port := cfg.WebServerPort
	if port == 0 {
		port = 8081
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("register_debug: open http://localhost:%d in your browser", port)
	return serveHTTP(ctx, srv)
}
