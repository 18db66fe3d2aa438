package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ridgehpc/ridge/internal/config"
	"github.com/ridgehpc/ridge/internal/controller"
	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/metrics"
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
	Use:     "ridge-controller",
	Short:   "Ridge cluster controller: scheduler, job/node state, credentialed launch",
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the controller: raft node, scheduler loop, gRPC and watch listeners",
	RunE:  run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridge-controller %s (%s)\n", Version, Commit))

	flags := serveCmd.Flags()
	flags.String("node-id", "", "unique id of this controller within the raft cluster (required)")
	flags.String("bind-addr", "0.0.0.0:6817", "gRPC listen address")
	flags.String("raft-addr", "127.0.0.1:6819", "raft transport bind address")
	flags.String("data-dir", "./data/controller", "directory for the bolt store and raft log")
	flags.String("config", "./cluster.yaml", "path to the cluster config file")
	flags.String("hmac-key", "", "shared key for credential signing (required)")
	flags.Bool("bootstrap", false, "bootstrap a new single-node raft cluster on startup")
	flags.String("watch-addr", "127.0.0.1:6820", "HTTP+WebSocket watch surface bind address")
	flags.String("metrics-addr", "127.0.0.1:9090", "Prometheus /metrics bind address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON")
	_ = serveCmd.MarkFlagRequired("node-id")
	_ = serveCmd.MarkFlagRequired("hmac-key")
	rootCmd.AddCommand(serveCmd)

	issueFlags := issueCertCmd.Flags()
	issueFlags.String("node-id", "", "node id the certificate identifies (required)")
	issueFlags.StringSlice("dns-names", nil, "DNS names/addresses to embed in the certificate")
	issueFlags.String("data-dir", "./data/controller", "controller data dir the CA is persisted under; must match the running controller's --data-dir")
	issueFlags.String("out-dir", ".", "directory to write cert.pem/key.pem/ca.pem into")
	_ = issueCertCmd.MarkFlagRequired("node-id")
	rootCmd.AddCommand(issueCertCmd)
}

// issueCertCmd provisions a node agent's mTLS material out of band: it loads
// the same on-disk CA the running controller uses (under --data-dir/ca, via
// CertAuthority.LoadOrInitialize) and issues a leaf certificate from it, so
// the result validates against that controller's actual certificate chain.
// Output is written to disk for the operator to copy onto the target node.
var issueCertCmd = &cobra.Command{
	Use:   "issue-cert",
	Short: "issue a node-agent certificate signed by the cluster CA",
	RunE:  runIssueCert,
}

func runIssueCert(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	nodeID, _ := flags.GetString("node-id")
	dnsNames, _ := flags.GetStringSlice("dns-names")
	dataDir, _ := flags.GetString("data-dir")
	outDir, _ := flags.GetString("out-dir")

	ca := security.NewCertAuthority()
	if err := ca.LoadOrInitialize(dataDir + "/ca"); err != nil {
		return fmt.Errorf("load or initialize CA: %w", err)
	}
	cert, err := ca.IssueNodeCertificate(nodeID, "node-agent", dnsNames, nil)
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writePEM(outDir+"/cert.pem", "CERTIFICATE", cert.Certificate[0]); err != nil {
		return err
	}
	keyDER := x509.MarshalPKCS1PrivateKey(cert.PrivateKey.(*rsa.PrivateKey))
	if err := writePEM(outDir+"/key.pem", "RSA PRIVATE KEY", keyDER); err != nil {
		return err
	}
	if err := writePEM(outDir+"/ca.pem", "CERTIFICATE", ca.GetRootCACert()); err != nil {
		return err
	}
	fmt.Printf("wrote %s/{cert,key,ca}.pem for node %q\n", outDir, nodeID)
	return nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	nodeID, _ := flags.GetString("node-id")
	bindAddr, _ := flags.GetString("bind-addr")
	raftAddr, _ := flags.GetString("raft-addr")
	dataDir, _ := flags.GetString("data-dir")
	configPath, _ := flags.GetString("config")
	hmacKey, _ := flags.GetString("hmac-key")
	bootstrap, _ := flags.GetBool("bootstrap")
	watchAddr, _ := flags.GetString("watch-addr")
	metricsAddr, _ := flags.GetString("metrics-addr")
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cluster, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load cluster config: %w", err)
	}
	nodes, partitions, err := cluster.ToDomain()
	if err != nil {
		return fmt.Errorf("convert cluster config: %w", err)
	}

	var topologyDims [3]int
	if cluster.Topology != nil {
		topologyDims = cluster.Topology.Geometry
	}

	ctrl, err := controller.New(controller.Config{
		NodeID:          nodeID,
		BindAddr:        bindAddr,
		RaftAddr:        raftAddr,
		DataDir:         dataDir,
		Nodes:           nodes,
		Partitions:      partitions,
		Signer:          credential.NewHMACSigner([]byte(hmacKey)),
		TopologyDims:    topologyDims,
		SchedInterval:   cluster.SchedInterval,
		SlurmdTimeout:   cluster.SlurmdTimeout,
		LaunchTimeout:   cluster.LaunchTimeout,
		DeadlineScan:    cluster.DeadlineScan,
		CredentialGrace: cluster.CredentialGrace,
		MaxRetries:      cluster.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	if bootstrap {
		if err := ctrl.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap raft cluster: %w", err)
		}
		log.Info("raft cluster bootstrapped")
	}
	ctrl.Start()
	defer ctrl.Stop()

	tlsCfg, err := ctrl.ServerTLSConfig()
	if err != nil {
		return fmt.Errorf("build server tls config: %w", err)
	}
	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", bindAddr, err)
	}
	grpcSrv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsCfg)))
	rpcwire.RegisterControllerServer(grpcSrv, controller.NewServer(ctrl))

	go func() {
		log.WithComponent("controller").Info().Str("addr", bindAddr).Msg("gRPC listener started")
		if err := grpcSrv.Serve(lis); err != nil {
			log.WithComponent("controller").Error().Err(err).Msg("grpc server stopped")
		}
	}()

	watchMux := http.NewServeMux()
	watchMux.Handle("/", ctrl.WatchHandler())
	watchMux.Handle("/metrics", metrics.Handler())
	go func() {
		log.WithComponent("controller").Info().Str("addr", watchAddr).Msg("watch surface started")
		if err := http.ListenAndServe(watchAddr, watchMux); err != nil {
			log.WithComponent("controller").Error().Err(err).Msg("watch server stopped")
		}
	}()

	if metricsAddr != watchAddr {
		go func() {
			if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
				log.WithComponent("controller").Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	grpcSrv.GracefulStop()
	return nil
}
