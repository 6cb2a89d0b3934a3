package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		insecureTransportPolicy(),
		unsignedRepositoryPolicy(),
		privilegedCommandPolicy(),
	}
}

// insecureTransportPolicy rejects clones and repositories over plain http or git://.
func insecureTransportPolicy() Policy {
	return Policy{
		Name:        "insecure-transport",
		Description: "Repositories and clones must not use unencrypted transports",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package homestead.policies.transport

import rego.v1

insecure_schemes := ["http://", "git://"]

deny contains violation if {
	input.action.kind == "git.clone"
	url := input.action.spec.repository
	some scheme in insecure_schemes
	startswith(url, scheme)
	violation := {
		"message": sprintf("git clone of %s uses an unencrypted transport", [url]),
	}
}

deny contains violation if {
	some url in repository_urls
	some scheme in insecure_schemes
	startswith(url, scheme)
	violation := {
		"message": sprintf("repository %s uses an unencrypted transport", [url]),
	}
}

deny contains violation if {
	key_url := repository.key.url
	startswith(key_url, "http://")
	violation := {
		"message": sprintf("repository key %s is downloaded over http", [key_url]),
	}
}

repository = input.action.spec.repository if {
	input.action.kind == "package.install"
}

repository = input.action.spec if {
	input.action.kind == "package.repository"
}

repository_urls contains url if {
	url := repository.url
}
`,
	}
}

// unsignedRepositoryPolicy warns about repositories added without a signing key.
func unsignedRepositoryPolicy() Policy {
	return Policy{
		Name:        "unsigned-repository",
		Description: "Repositories with a URL should declare a signing key",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package homestead.policies.signing

import rego.v1

deny contains violation if {
	input.action.kind == "package.install"
	repo := input.action.spec.repository
	repo.url
	not repo.key
	violation := {
		"message": sprintf("repository %s has no signing key", [repo.name]),
	}
}

deny contains violation if {
	input.action.kind == "package.repository"
	input.action.spec.url
	not input.action.spec.key
	violation := {
		"message": sprintf("repository %s has no signing key", [input.action.spec.name]),
	}
}
`,
	}
}

// privilegedCommandPolicy reports commands that run with elevated privileges.
func privilegedCommandPolicy() Policy {
	return Policy{
		Name:        "privileged-command",
		Description: "Reports commands that run with elevated privileges",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package homestead.policies.privilege

import rego.v1

deny contains violation if {
	input.action.kind == "command.run"
	input.action.spec.privileged
	violation := {
		"message": sprintf("command %s runs with elevated privileges", [input.action.spec.command]),
	}
}
`,
	}
}
