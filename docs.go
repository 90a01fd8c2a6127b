// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// hseauth provides the authorization code login flow for native OIDC
// clients: discovery, the interactive browser session, the code exchange,
// refreshes and logout.
//
// See the oidc package and oidc/examples/cli.
package hseauth
