// ledger-beacond runs a local in-process simulation of a cabinet of
// consensus nodes, exercising the full BeaconSetupService/BeaconService/
// Consensus/MainChain pipeline over the in-memory transport. There is no
// real network listener here (see internal/transport's doc on scope) - a
// production deployment wires internal/node.Node to a real transport
// implementation instead of memnet.Cluster.
//
// Grounded on the teacher's cmd/drand-cli (urfave/cli/v2 command tree) and
// cmd/demo-client, which similarly drives a small local cluster for manual
// exercise of the DKG/beacon pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/crypto/ecdsa"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/beaconsvc"
	"github.com/drand/ledger-beacon/internal/consensus"
	"github.com/drand/ledger-beacon/internal/mainchain"
	"github.com/drand/ledger-beacon/internal/node"
	"github.com/drand/ledger-beacon/internal/transport/memnet"
)

var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

var cabinetSizeFlag = &cli.IntFlag{
	Name:  "cabinet-size",
	Value: 4,
	Usage: "number of simulated cabinet members",
}

var aeonPeriodFlag = &cli.Uint64Flag{
	Name:  "aeon-period",
	Value: 20,
	Usage: "blocks per aeon",
}

var durationFlag = &cli.DurationFlag{
	Name:  "duration",
	Value: 30 * time.Second,
	Usage: "how long to run the simulation before exiting",
}

func main() {
	app := &cli.App{
		Name:    "ledger-beacond",
		Usage:   "consensus core simulation harness",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		Commands: []*cli.Command{
			simulateCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var simulateCommand = &cli.Command{
	Name:  "simulate",
	Usage: "start a local in-memory cabinet and run its first DKG/beacon cycle",
	Flags: []cli.Flag{cabinetSizeFlag, aeonPeriodFlag, durationFlag},
	Action: func(c *cli.Context) error {
		return runSimulation(c.Int(cabinetSizeFlag.Name), c.Uint64(aeonPeriodFlag.Name), c.Duration(durationFlag.Name))
	},
}

func runSimulation(cabinetSize int, aeonPeriod uint64, runFor time.Duration) error {
	runID := uuid.New().String()
	l := log.DefaultLogger().Named(runID)
	scheme := bls.NewDefaultScheme()
	cluster := memnet.NewCluster()

	identities := make([]address.Identity, 0, cabinetSize)
	nodes := make([]*node.Node, 0, cabinetSize)
	weights := make(map[address.Address]uint64, cabinetSize)

	// Phase 1: generate every member's keys and Config, so the shared
	// stake snapshot and whitelist can be built before any Node exists.
	ecdsaKeys := make([]*ecdsa.PrivateKey, 0, cabinetSize)
	for i := 0; i < cabinetSize; i++ {
		scalar := scheme.KeyGroup.Scalar().Pick(scheme.Suite.RandomStream())
		addrSeed := scheme.KeyGroup.Point().Mul(scalar, nil)
		addrBytes, err := addrSeed.MarshalBinary()
		if err != nil {
			return fmt.Errorf("derive address: %w", err)
		}
		addr := address.FromBytes(addrBytes)
		prover := address.NewProver(addr, scalar, scheme)

		ecdsaKey, err := ecdsa.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate ecdsa key: %w", err)
		}

		identity := prover.Identity().WithECDSAKey(ecdsaKey.Public().Bytes())
		identities = append(identities, identity)
		weights[addr] = 1
		ecdsaKeys = append(ecdsaKeys, ecdsaKey)
	}

	members := make([]address.Address, 0, cabinetSize)
	for _, id := range identities {
		members = append(members, id.Address())
	}
	stakes := node.NewStaticStakeSource(weights)
	genesis := &chaintypes.Block{BlockNumber: 0}

	// Phase 2: build every Node, join the in-memory cluster, then wire the
	// transport now that every Inbound handler is registered.
	for i, identity := range identities {
		cfg := node.Config{
			Self:      identity,
			ECDSAKey:  ecdsaKeys[i],
			Scheme:    scheme,
			Setup:     beaconsetup.DefaultConfig(),
			Service:   beaconsvc.DefaultConfig(),
			Consensus: withAeonPeriod(consensus.DefaultConfig(), aeonPeriod),
			Chain:     mainchain.DefaultConfig(),
			Stakes:    stakes,
			Genesis:   genesis,
		}
		n := node.New(cfg, l)
		for _, other := range identities {
			n.Directory().Set(other)
		}
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		net := cluster.Join(n.Self(), n)
		n.WireNetwork(net)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()
	stop, cancelSig := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelSig()

	for _, n := range nodes {
		go n.Run(stop)
	}

	for _, n := range nodes {
		n.StartNewCabinet(members, 1, aeonPeriod)
	}

	l.Infow("simulation running", "members", len(members), "aeon_period", aeonPeriod, "for", runFor)
	<-stop.Done()
	l.Infow("simulation stopped")
	return nil
}

func withAeonPeriod(cfg consensus.Config, period uint64) consensus.Config {
	cfg.AeonPeriod = period
	return cfg
}
