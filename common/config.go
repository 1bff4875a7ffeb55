package common

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

// ProofBackendMock deterministic checksum proofs; no cryptographic soundness
const ProofBackendMock = "mock"

// ProofBackendGnark gnark groth16 proofs over fixed circuit artifacts
const ProofBackendGnark = "gnark"

const defaultProofBackend = ProofBackendMock
const defaultProvingScheme = "groth16"
const defaultProvingCurve = "bn254"
const defaultPersistenceProvider = "file"
const defaultPersistencePath = "./.shieldpay/ledger.json"
const defaultZkArtifactsDir = "./circuits/build"

var (
	// Log is the configured logger
	Log *logger.Logger

	// ProofBackend selects the proof subsystem implementation (mock or gnark)
	ProofBackend string

	// ProvingScheme names the zksnark proving scheme the circuit artifacts were produced for
	ProvingScheme string

	// ProvingCurve names the elliptic curve the circuit artifacts were produced for
	ProvingCurve string

	// PersistenceProvider selects the ledger snapshot storage provider
	PersistenceProvider string

	// PersistencePath is the file path used by the configured snapshot provider
	PersistencePath string

	// ZkArtifactsDir is the base directory for compiled circuit artifacts
	ZkArtifactsDir string

	// DispatchNATSNotifications toggles JetStream event publication on ledger mutations
	DispatchNATSNotifications bool

	// ConsumeNATSStreamingSubscriptions toggles NATS subscription setup in consumers
	ConsumeNATSStreamingSubscriptions bool
)

func init() {
	godotenv.Load()

	requireLogger()
	requireLedgerConfiguration()
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("shieldpay", lvl, endpoint)
}

func requireLedgerConfiguration() {
	ProofBackend = strings.ToLower(os.Getenv("SHIELDPAY_PROOF_BACKEND"))
	if ProofBackend == "" {
		ProofBackend = defaultProofBackend
	}

	ProvingScheme = strings.ToLower(os.Getenv("SHIELDPAY_PROVING_SCHEME"))
	if ProvingScheme == "" {
		ProvingScheme = defaultProvingScheme
	}

	ProvingCurve = strings.ToLower(os.Getenv("SHIELDPAY_PROVING_CURVE"))
	if ProvingCurve == "" {
		ProvingCurve = defaultProvingCurve
	}

	PersistenceProvider = strings.ToLower(os.Getenv("SHIELDPAY_PERSISTENCE_PROVIDER"))
	if PersistenceProvider == "" {
		PersistenceProvider = defaultPersistenceProvider
	}

	PersistencePath = os.Getenv("SHIELDPAY_PERSISTENCE_PATH")
	if PersistencePath == "" {
		PersistencePath = defaultPersistencePath
	}

	ZkArtifactsDir = os.Getenv("SHIELDPAY_ZK_ARTIFACTS_DIR")
	if ZkArtifactsDir == "" {
		ZkArtifactsDir = defaultZkArtifactsDir
	}

	DispatchNATSNotifications = strings.ToLower(os.Getenv("NATS_NOTIFICATIONS")) == "true"
	ConsumeNATSStreamingSubscriptions = strings.ToLower(os.Getenv("CONSUME_NATS_STREAMING_SUBSCRIPTIONS")) == "true"
}
