package ledgerstream

// InstrumentationVersion is reported by the otel instrumentation package.
const InstrumentationVersion = "0.1.0"
