// Package policy gates runs with Open Policy Agent (Rego) policies.
//
// Before any action executes, every enabled policy is evaluated once per
// action. A policy is a Rego module whose package defines a deny set; each
// member is a string or an object with a "message" (and optionally a
// "severity"). Violations of error severity block the run, others are
// reported.
//
// The input document for one action is:
//
//	{
//	  "manifest": {"name": "dev.git", "path": "...", "depends": ["base"]},
//	  "action": {
//	    "index": 0,
//	    "kind": "package.install",
//	    "description": "install [git]",
//	    "spec": {"packages": ["git"], "provider": "aptitude"}
//	  },
//	  "platform": {"os": "linux", "family": "debian", "arch": "amd64"}
//	}
//
// spec holds the action's declared fields before templates are rendered.
//
// Example policy forbidding the snap provider:
//
//	package homestead.local
//
//	import rego.v1
//
//	# severity: error
//	deny contains msg if {
//		input.action.spec.provider == "snap"
//		msg := "snap packages are not allowed"
//	}
//
// Built-in policies reject unencrypted repository and clone transports,
// warn about repositories without signing keys, and report privileged
// commands.
package policy
