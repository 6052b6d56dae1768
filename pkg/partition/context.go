package partition

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/utils"
)

// Objective selects the cut metric the partitioner minimizes.
type Objective string

const (
	// ObjectiveCut is the weight of hyperedges spanning more than one block.
	ObjectiveCut Objective = "cut"
	// ObjectiveKm1 is the connectivity metric sum (lambda(e)-1)*w(e).
	ObjectiveKm1 Objective = "km1"
)

// FlowAlgorithm selects the quotient-graph scheduler variant.
type FlowAlgorithm string

const (
	FlowOff        FlowAlgorithm = "off"
	FlowMatching   FlowAlgorithm = "matching"
	FlowOptimistic FlowAlgorithm = "optimistic"
)

// Config manages partitioner configuration using Viper.
type Config struct {
	v *viper.Viper
}

// NewConfig creates a configuration with defaults for every option.
func NewConfig() *Config {
	v := viper.New()

	v.SetDefault("partition.k", 2)
	v.SetDefault("partition.epsilon", 0.03)
	v.SetDefault("partition.objective", string(ObjectiveKm1))
	v.SetDefault("partition.seed", int64(42))

	v.SetDefault("shared_memory.num_threads", runtime.NumCPU())
	v.SetDefault("shared_memory.use_localized_random_shuffle", false)
	v.SetDefault("shared_memory.shuffle_block_size", 1024)

	v.SetDefault("coarsening.contraction_limit", 160)
	v.SetDefault("coarsening.max_allowed_node_weight", 0)
	v.SetDefault("coarsening.minimum_shrink_factor", 1.01)

	v.SetDefault("refinement.fm.num_seeds", 25)
	v.SetDefault("refinement.fm.num_searches", 0)
	v.SetDefault("refinement.fm.max_moves", 2000)
	v.SetDefault("refinement.fm.stall_moves", 350)
	v.SetDefault("refinement.fm.time_limit_ms", 0)

	v.SetDefault("refinement.flow.algorithm", string(FlowMatching))
	v.SetDefault("refinement.flow.core_size", 50)
	v.SetDefault("refinement.flow.max_instance_size", 400)
	v.SetDefault("refinement.flow.pin_sample_size", 1000)
	v.SetDefault("refinement.flow.max_rounds", 8)
	v.SetDefault("refinement.flow.tasks_per_block", 2)
	v.SetDefault("refinement.flow.time_limit_ms", 0)

	v.SetDefault("preprocessing.use_community_detection", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)

	v.SetDefault("debug.verify_invariants", false)

	v.SetDefault("analysis.track_moves", false)
	v.SetDefault("analysis.output_file", "moves.jsonl")

	return &Config{v: v}
}

// LoadFromFile loads configuration from a file.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Set allows dynamic configuration changes.
func (c *Config) Set(key string, value interface{}) { c.v.Set(key, value) }

func (c *Config) K() int32                  { return c.v.GetInt32("partition.k") }
func (c *Config) Epsilon() float64          { return c.v.GetFloat64("partition.epsilon") }
func (c *Config) ObjectiveName() Objective  { return Objective(c.v.GetString("partition.objective")) }
func (c *Config) Seed() int64               { return c.v.GetInt64("partition.seed") }
func (c *Config) NumThreads() int           { return c.v.GetInt("shared_memory.num_threads") }
func (c *Config) UseLocalizedShuffle() bool {
	return c.v.GetBool("shared_memory.use_localized_random_shuffle")
}
func (c *Config) ShuffleBlockSize() int    { return c.v.GetInt("shared_memory.shuffle_block_size") }
func (c *Config) ContractionLimit() int32  { return c.v.GetInt32("coarsening.contraction_limit") }
func (c *Config) MaxAllowedNodeWeight() hypergraph.Weight {
	return hypergraph.Weight(c.v.GetInt32("coarsening.max_allowed_node_weight"))
}
func (c *Config) MinimumShrinkFactor() float64 {
	return c.v.GetFloat64("coarsening.minimum_shrink_factor")
}
func (c *Config) FMNumSeeds() int    { return c.v.GetInt("refinement.fm.num_seeds") }
func (c *Config) FMNumSearches() int { return c.v.GetInt("refinement.fm.num_searches") }
func (c *Config) FMMaxMoves() int    { return c.v.GetInt("refinement.fm.max_moves") }
func (c *Config) FMStallMoves() int  { return c.v.GetInt("refinement.fm.stall_moves") }
func (c *Config) FMTimeLimit() time.Duration {
	return time.Duration(c.v.GetInt("refinement.fm.time_limit_ms")) * time.Millisecond
}
func (c *Config) FlowAlgorithmName() FlowAlgorithm {
	return FlowAlgorithm(c.v.GetString("refinement.flow.algorithm"))
}
func (c *Config) FlowCoreSize() int        { return c.v.GetInt("refinement.flow.core_size") }
func (c *Config) FlowMaxInstanceSize() int { return c.v.GetInt("refinement.flow.max_instance_size") }
func (c *Config) FlowPinSampleSize() int   { return c.v.GetInt("refinement.flow.pin_sample_size") }
func (c *Config) FlowMaxRounds() int       { return c.v.GetInt("refinement.flow.max_rounds") }
func (c *Config) FlowTasksPerBlock() int   { return c.v.GetInt("refinement.flow.tasks_per_block") }
func (c *Config) FlowTimeLimit() time.Duration {
	return time.Duration(c.v.GetInt("refinement.flow.time_limit_ms")) * time.Millisecond
}
func (c *Config) UseCommunityDetection() bool {
	return c.v.GetBool("preprocessing.use_community_detection")
}
func (c *Config) LogLevel() string        { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool    { return c.v.GetBool("logging.enable_progress") }
func (c *Config) VerifyInvariants() bool  { return c.v.GetBool("debug.verify_invariants") }
func (c *Config) EnableMoveTracking() bool { return c.v.GetBool("analysis.track_moves") }
func (c *Config) TrackingOutputFile() string { return c.v.GetString("analysis.output_file") }

// CreateLogger creates a zerolog logger based on the configured level.
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// Context is the resolved runtime context derived from a Config and the
// input hypergraph. Block weight limits are fixed at setup time.
type Context struct {
	K         int32
	Epsilon   float64
	Objective Objective
	Seed      int64

	NumThreads int

	// PerfectBalancePartWeights[b] is ceil(W/k); MaxPartWeights[b] is
	// ceil((1+epsilon)*W/k).
	PerfectBalancePartWeights []int64
	MaxPartWeights            []int64

	Config *Config
	Logger zerolog.Logger

	// MoveTracker is the optional analysis journal; nil when tracking is off.
	MoveTracker *utils.MoveTracker
}

// NewContext validates the configuration and resolves the runtime context for
// a hypergraph of the given total weight and maximum node weight.
func NewContext(cfg *Config, totalWeight int64, maxNodeWeight hypergraph.Weight) (*Context, error) {
	k := cfg.K()
	eps := cfg.Epsilon()
	if k < 2 {
		return nil, fmt.Errorf("%w: k must be at least 2, got %d", hypergraph.ErrInvalidInput, k)
	}
	if eps < 0 {
		return nil, fmt.Errorf("%w: epsilon must be non-negative, got %f", hypergraph.ErrInvalidInput, eps)
	}
	obj := cfg.ObjectiveName()
	if obj != ObjectiveCut && obj != ObjectiveKm1 {
		return nil, fmt.Errorf("%w: unknown objective %q", hypergraph.ErrInvalidInput, obj)
	}

	numThreads := cfg.NumThreads()
	if cpus := runtime.NumCPU(); numThreads <= 0 || numThreads > cpus {
		numThreads = cpus
	}

	ctx := &Context{
		K:          k,
		Epsilon:    eps,
		Objective:  obj,
		Seed:       cfg.Seed(),
		NumThreads: numThreads,
		Config:     cfg,
		Logger:     cfg.CreateLogger(),
	}

	perfect := int64(math.Ceil(float64(totalWeight) / float64(k)))
	limit := int64(math.Ceil((1 + eps) * float64(totalWeight) / float64(k)))
	ctx.PerfectBalancePartWeights = make([]int64, k)
	ctx.MaxPartWeights = make([]int64, k)
	for b := int32(0); b < k; b++ {
		ctx.PerfectBalancePartWeights[b] = perfect
		ctx.MaxPartWeights[b] = limit
	}

	if int64(maxNodeWeight) > limit {
		return nil, fmt.Errorf("%w: max node weight %d exceeds block weight limit %d",
			hypergraph.ErrInfeasible, maxNodeWeight, limit)
	}
	return ctx, nil
}
