package metadata

/** Definition for jobs. The entry point may publish a result on the channel. */
type JobStart func(params interface{}, results chan<- interface{}) error

/** Definition for completion of a job. Receives the channel the entry point published on. */
type JobOnComplete func(results <-chan interface{})

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked when the job succeeds. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure JobOnComplete
	/** @brief Invoked after success or failure. Optional. */
	OnCompletionCallback func()
	/** @brief Data passed to the entry point upon execution. */
	InputParams interface{}
}
