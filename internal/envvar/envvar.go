package envvar

const (
	// ResonaEnv is the environment variable used to determine the environment
	ResonaEnv = "RESONA_ENV"

	// ResonaConfigPath is the environment variable used to override the config file path
	ResonaConfigPath = "RESONA_CONFIG_PATH"

	// ResonaModelsPath is the environment variable used to override the models directory
	ResonaModelsPath = "RESONA_MODELS_PATH"

	// ResonaModelProfile is the environment variable used to override the active model size profile
	ResonaModelProfile = "RESONA_MODEL_PROFILE"

	// ResonaRunnerPath is the environment variable used to override the inference runner binary
	ResonaRunnerPath = "RESONA_RUNNER_PATH"
)
