// Command ridge-agent is Ridge's per-node agent: it dials the controller for
// heartbeats and task-exit reporting, and serves credentialed step launches
// described in spec.md §4.5 over its own mTLS gRPC listener.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/nodeagent"
	ridgeruntime "github.com/ridgehpc/ridge/internal/nodeagent/runtime"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"github.com/ridgehpc/ridge/internal/security"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ridge-agent",
	Short:   "Ridge node agent: credentialed step launch, heartbeats, task exit reporting",
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the node agent: controller connection, heartbeat loop, launch listener",
	RunE:  run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridge-agent %s (%s)\n", Version, Commit))

	flags := serveCmd.Flags()
	flags.String("node-name", "", "this node's name, as declared in the controller's cluster config (required)")
	flags.String("bind-addr", "0.0.0.0:6818", "gRPC listen address for launch/signal/terminate RPCs from the controller")
	flags.String("controller-addr", "", "controller gRPC address to dial for heartbeats and exit reports (required)")
	flags.String("cert-file", "", "PEM certificate issued by 'ridge-controller issue-cert' (required)")
	flags.String("key-file", "", "PEM private key matching --cert-file (required)")
	flags.String("ca-file", "", "PEM root CA certificate, as written by 'ridge-controller issue-cert' (required)")
	flags.String("hmac-key", "", "shared key for credential verification, matching the controller's --hmac-key (required)")
	flags.Duration("credential-grace", 5*time.Minute, "launch credential replay-rejection window")
	flags.Duration("heartbeat-interval", 10*time.Second, "interval between heartbeats sent to the controller")
	flags.String("runtime", "exec", "task execution backend: exec or containerd")
	flags.String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path, when --runtime=containerd")
	flags.String("shim-bind-host", "0.0.0.0", "host the in-process step shim listener binds on lead nodes")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON")
	_ = serveCmd.MarkFlagRequired("node-name")
	_ = serveCmd.MarkFlagRequired("controller-addr")
	_ = serveCmd.MarkFlagRequired("cert-file")
	_ = serveCmd.MarkFlagRequired("key-file")
	_ = serveCmd.MarkFlagRequired("ca-file")
	_ = serveCmd.MarkFlagRequired("hmac-key")
	rootCmd.AddCommand(serveCmd)
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	nodeName, _ := flags.GetString("node-name")
	bindAddr, _ := flags.GetString("bind-addr")
	controllerAddr, _ := flags.GetString("controller-addr")
	certFile, _ := flags.GetString("cert-file")
	keyFile, _ := flags.GetString("key-file")
	caFile, _ := flags.GetString("ca-file")
	hmacKey, _ := flags.GetString("hmac-key")
	credentialGrace, _ := flags.GetDuration("credential-grace")
	heartbeatInterval, _ := flags.GetDuration("heartbeat-interval")
	runtimeName, _ := flags.GetString("runtime")
	containerdSocket, _ := flags.GetString("containerd-socket")
	shimBindHost, _ := flags.GetString("shim-bind-host")
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cert, rootDER, err := loadCertMaterial(certFile, keyFile, caFile)
	if err != nil {
		return fmt.Errorf("load certificate material: %w", err)
	}

	backend, err := newBackend(runtimeName, containerdSocket)
	if err != nil {
		return fmt.Errorf("build runtime backend: %w", err)
	}

	agent, err := nodeagent.New(nodeagent.Config{
		NodeName:        nodeName,
		ControllerAddr:  controllerAddr,
		Cert:            cert,
		RootDER:         rootDER,
		Signer:          credential.NewHMACSigner([]byte(hmacKey)),
		CredentialGrace: credentialGrace,
		Backend:         backend,
		ShimBindHost:    shimBindHost,
	})
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	defer agent.Close()

	tlsCfg, err := security.ServerTLSConfig(cert, rootDER)
	if err != nil {
		return fmt.Errorf("build server tls config: %w", err)
	}
	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", bindAddr, err)
	}
	grpcSrv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsCfg)))
	rpcwire.RegisterNodeAgentServer(grpcSrv, nodeagent.NewServer(agent))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.RunHeartbeatLoop(ctx, heartbeatInterval)

	go func() {
		log.WithComponent("agent").Info().Str("addr", bindAddr).Msg("gRPC listener started")
		if err := grpcSrv.Serve(lis); err != nil {
			log.WithComponent("agent").Error().Err(err).Msg("grpc server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	agent.SetDraining(true)
	grpcSrv.GracefulStop()
	return nil
}

func loadCertMaterial(certFile, keyFile, caFile string) (*tls.Certificate, []byte, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load keypair: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read ca file: %w", err)
	}
	block, _ := pem.Decode(caPEM)
	if block == nil {
		return nil, nil, fmt.Errorf("decode %s: no PEM block found", caFile)
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return nil, nil, fmt.Errorf("parse root certificate: %w", err)
	}
	return &cert, block.Bytes, nil
}

func newBackend(name, containerdSocket string) (ridgeruntime.Backend, error) {
	switch name {
	case "containerd":
		return ridgeruntime.NewContainerdBackend(containerdSocket)
	case "exec", "":
		return ridgeruntime.NewExecBackend(), nil
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", name)
	}
}
