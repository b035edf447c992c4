/*
Package domain contains the core domain models for the Skein engine.

It defines the fundamental entities of the orchestration pipeline: Tasks,
Runs, Invocations, Conversations and Results. This package is kept pure and
free of external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - Task: Immutable definition of one model-backed operation (prompt template,
    model, declared output schema).
  - Run: One concrete execution instance of a flow, with its invocation
    history and per-task conversations.
  - Invocation: A single execution attempt, immutable once completed.
  - Result: Schema-conforming payload plus the raw model response.
  - CacheEntry: Content-addressed record of a previously computed Result.
*/
package domain
