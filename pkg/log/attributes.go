package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator, e.g. "GradientBoosting".
	ModelNameKey = "model.name"
	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"
	// ComponentKey names the package emitting the record.
	ComponentKey = "ml.component"
	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"
	// RunIDKey identifies one training run and the artifact it produced.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	PathKey     = "data.path"
)

// Performance and evaluation.
const (
	DurationMsKey = "perf.duration_ms"
	LossKey       = "metrics.loss"
	R2ScoreKey    = "metrics.r2_score"
	RMSEKey       = "metrics.rmse"
	MAEKey        = "metrics.mae"
	IterationKey  = "training.iteration"
	PredsKey      = "preds.count"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey   = "model.hyperparams"
	LearningRateKey  = "hyperparams.learning_rate"
	RandomSeedKey    = "config.random_seed"
	ArtifactKey      = "artifact.path"
	FormatVersionKey = "artifact.format_version"
)

// Error context.
const (
	ErrorKey      = "error"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationEvaluate  = "evaluate"
	OperationSave      = "save"
	OperationLoad      = "load"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
