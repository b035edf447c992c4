// Package skein is a task-orchestration and result-caching engine for
// pipelines of calls to a generative language model.
//
// A Task is the immutable definition of one model-backed operation: a
// prompt template, a model, and optional input/output schemas. A Run is
// one execution instance; it owns its invocation history and a per-task
// conversation used as model context. Results are cached under a
// deterministic content fingerprint, so identical invocations never pay
// for a second gateway call, across process restarts included:
//
//	eng := skein.New(gateway,
//		skein.WithRunStore(file.New(".skein/runs")),
//	)
//	run := eng.StartRun("")
//	inv, err := eng.Execute(ctx, run, task, map[string]any{
//		"text":      doc,
//		"max_words": 20,
//	})
//
// Model responses are validated against the task's declared output schema
// with bounded corrective retries, a prior result can be refined with
// free-text feedback via Refine, and SaveRun/ResumeRun persist and
// restore full run state for stop-and-resume pipelines.
//
// The model transport itself is a collaborator behind the ports.Gateway
// interface; this package performs no inference.
package skein
