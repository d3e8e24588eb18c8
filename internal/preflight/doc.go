// Package preflight provides readiness checks for the filesystem paths a
// conversion run touches.
//
// These checks run in two contexts:
//   - The pipeline calls RequireDirectory before accepting an invocation and
//     RequireWritable before processing the first item. Failures abort the
//     run with a fatal error and no item is touched.
//   - The CLI "b2pc tools" command uses RunAll to display state and log
//     directory health next to the tool registry.
package preflight
