// Copyright 2024 The hdds Authors.

// Command hddsparticipant is an illustrative reference participant binary
// (spec.md §6.2): it wires the flags and environment variables a real
// embedder would read into an hdds.Participant and then idles until
// SIGINT. It is intentionally thin; the core never imports this package.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hdds-io/hdds"
	"github.com/hdds-io/hdds/internal/diagnostics"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/pkg/hlog"
)

const (
	exitOK        = 0
	exitConfig    = 1
	exitRuntimeIO = 2
	exitSecurity  = 3
	exitSigint    = 130
)

var (
	fDomain    = flag.Uint("domain", 0, "domain id")
	fTransport = flag.String("transport", "udp-multicast", "udp-multicast|udp-unicast|tcp|quic|intra")
	fName      = flag.String("name", "hddsparticipant", "participant display name")
	fQoS       = flag.String("qos", "", "QoS profile file (YAML)")
	fLogLevel  = flag.String("log-level", "info", "trace|debug|info|warn|error")
)

func init() {
	flag.UintVar(fDomain, "d", 0, "domain id (shorthand for -domain)")
}

func main() {
	flag.Parse()

	level, err := parseLevel(*fLogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
	hlog.SetOutput(os.Stderr, level)

	transport, err := parseTransport(*fTransport)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}

	policy := qos.Default()
	if *fQoS != "" {
		policy, err = loadQoSProfile(*fQoS)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfig)
		}
	}

	if disableExporter := os.Getenv("HDDS_EXPORTER_DISABLE"); !truthy(disableExporter) {
		hlog.Debug("hddsparticipant: telemetry exporter would run here (HDDS_EXPORTER_DISABLE unset)")
	}

	var sniffer *diagnostics.Sniffer
	if truthy(os.Getenv("HDDS_LOG_UDP")) {
		sniffer, err = diagnostics.NewSniffer("any")
		if err != nil {
			// Diagnostic capture is advisory; a failure here is not a
			// configuration error, just logged and skipped.
			hlog.Warn("hddsparticipant: HDDS_LOG_UDP capture unavailable: %v", err)
		} else {
			go sniffer.Run(diagnostics.LogEnvelope)
			defer sniffer.Close()
		}
	}

	if addr := os.Getenv("HDDS_ADMIN_ADDR"); addr != "" {
		hlog.Info("hddsparticipant: admin client expected at %s (external tool)", addr)
	}

	p, err := hdds.New(*fName, uint32(*fDomain), policy, hdds.Config{Transport: transport})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeIO)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	if err := p.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeIO)
	}
	os.Exit(exitSigint)
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseLevel(s string) (hlog.Level, error) {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return hlog.DEBUG, nil
	case "info":
		return hlog.INFO, nil
	case "warn", "warning":
		return hlog.WARN, nil
	case "error":
		return hlog.ERROR, nil
	default:
		return 0, fmt.Errorf("hddsparticipant: unknown log level %q", s)
	}
}

func parseTransport(s string) (hdds.TransportMode, error) {
	switch strings.ToLower(s) {
	case "udp-multicast":
		return hdds.TransportUDPMulticast, nil
	case "udp-unicast":
		return hdds.TransportUDPUnicast, nil
	case "tcp":
		return hdds.TransportTCP, nil
	case "intra":
		return hdds.TransportIntraProcess, nil
	case "quic":
		return 0, fmt.Errorf("hddsparticipant: quic transport is not implemented")
	default:
		return 0, fmt.Errorf("hddsparticipant: unknown transport %q", s)
	}
}

// qosProfile is the YAML-facing shape of a QoS profile file; it mirrors
// qos.Policy's fields with string-keyed enums so a profile reads naturally
// (spec.md §6.2: "the core accepts the parsed QoS struct only", so this
// conversion happens here, never inside the core).
type qosProfile struct {
	Reliability     string   `yaml:"reliability"`
	Durability      string   `yaml:"durability"`
	History         string   `yaml:"history"`
	HistoryDepth    int      `yaml:"history_depth"`
	Partition       []string `yaml:"partition"`
	MaxBlockingMS   int      `yaml:"max_blocking_time_ms"`
}

func loadQoSProfile(path string) (qos.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return qos.Policy{}, fmt.Errorf("hddsparticipant: read qos profile: %w", err)
	}
	var prof qosProfile
	if err := yaml.Unmarshal(raw, &prof); err != nil {
		return qos.Policy{}, fmt.Errorf("hddsparticipant: parse qos profile: %w", err)
	}

	policy := qos.Default()
	switch strings.ToLower(prof.Reliability) {
	case "", "best_effort", "besteffort":
		policy.Reliability = qos.BestEffort
	case "reliable":
		policy.Reliability = qos.Reliable
	default:
		return qos.Policy{}, fmt.Errorf("hddsparticipant: unknown reliability %q", prof.Reliability)
	}
	switch strings.ToLower(prof.Durability) {
	case "", "volatile":
		policy.Durability = qos.Volatile
	case "transient_local", "transientlocal":
		policy.Durability = qos.TransientLocal
	case "transient":
		policy.Durability = qos.Transient
	case "persistent":
		policy.Durability = qos.Persistent
	default:
		return qos.Policy{}, fmt.Errorf("hddsparticipant: unknown durability %q", prof.Durability)
	}
	switch strings.ToLower(prof.History) {
	case "", "keep_last", "keeplast":
		policy.History = qos.KeepLast
		if prof.HistoryDepth > 0 {
			policy.HistoryDepth = prof.HistoryDepth
		}
	case "keep_all", "keepall":
		policy.History = qos.KeepAll
	default:
		return qos.Policy{}, fmt.Errorf("hddsparticipant: unknown history kind %q", prof.History)
	}
	policy.Partition = prof.Partition
	if prof.MaxBlockingMS > 0 {
		policy.MaxBlockingTime = time.Duration(prof.MaxBlockingMS) * time.Millisecond
	}
	return policy, nil
}
