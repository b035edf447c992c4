/*
Package ports defines the driven ports (interfaces) for the Skein engine.

These interfaces decouple the orchestration core from external
implementations, allowing the engine to work with various cache backends,
run stores, lock providers and model gateways.

# Key Interfaces

  - Gateway: The model-invocation boundary. Skein never performs inference
    itself; it hands a prompt and conversation history to a Gateway.
  - ResultCache: Content-addressable store mapping fingerprints to Results.
  - RunStore: Persists serialized run documents for stop-and-resume.
  - DistributedLocker: Coordinates per-fingerprint computes across replicas.
*/
package ports
