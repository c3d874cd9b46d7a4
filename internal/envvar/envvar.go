package envvar

const (
	// LeafsightEnv is the environment variable used to determine the environment
	LeafsightEnv = "LEAFSIGHT_ENV"

	// LeafsightServerHTTPPort is the environment variable used to determine the HTTP port
	LeafsightServerHTTPPort = "LEAFSIGHT_SERVER_HTTP_PORT"

	// LeafsightServerGRPCPort is the environment variable used to determine the gRPC port
	LeafsightServerGRPCPort = "LEAFSIGHT_SERVER_GRPC_PORT"

	// LeafsightModelsPath overrides the directory model artifacts are cached in.
	LeafsightModelsPath = "LEAFSIGHT_MODELS_PATH"

	// LeafsightModelPath overrides the full path of the model artifact.
	LeafsightModelPath = "LEAFSIGHT_MODEL_PATH"

	// LeafsightModelURL replaces the configured model source with a direct URL.
	LeafsightModelURL = "LEAFSIGHT_MODEL_URL"

	// LeafsightTopK overrides the number of ranked classes returned.
	LeafsightTopK = "LEAFSIGHT_TOP_K"

	// LeafsightConfidenceThreshold overrides the display confidence threshold.
	LeafsightConfidenceThreshold = "LEAFSIGHT_CONFIDENCE_THRESHOLD"

	// LeafsightONNXRuntimeLib points at the onnxruntime shared library.
	LeafsightONNXRuntimeLib = "LEAFSIGHT_ONNXRUNTIME_LIB"
)
