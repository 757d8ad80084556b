// Package handlers implements the model commands clients send over the
// subscription endpoint.
//
//	ClassInfo       list class names
//	RootClass       select the root class
//	ModelStructure  return the structural model of the root instance
//	FunctionInfo    list the root class operations
//	Subscribe       watch qualified variable names
//	Unsubscribe     stop watching (no names drops all)
//	Run             call an operation Steps times, pushing VariableUpdate
//	                after each step to the connections watching a variable
//
// Register installs them on a dispatch.Registry.
package handlers
