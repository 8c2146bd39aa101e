package main

import (
	"time"

	"github.com/policyassist/policyassist/pkg/portal"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in as development staff",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.portal.Auth().StaffLogin(cmd.Context()); err != nil {
				return err
			}
			s := a.session.Current()
			printOK(cmd.OutOrStdout(), "Signed in as %s (%s) on tenant %s", s.Email, s.Role, s.TenantID)
			return nil
		}),
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var creds portal.Credentials

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Sign in as a policyholder",
		Long:  "Verifies a policyholder by policy number and last name, or by company name for commercial policies.",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			if creds.CompanyName != "" {
				creds.By = portal.ByCompanyName
			}
			if err := a.portal.Auth().VerifyPolicyholder(cmd.Context(), creds); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Verified. Signed in to policy %s", a.session.Current().PolicyNumber)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&creds.PolicyNumber, "policy", "p", "", "policy number")
	cmd.Flags().StringVar(&creds.LastName, "last-name", "", "policyholder last name")
	cmd.Flags().StringVar(&creds.CompanyName, "company", "", "company name for commercial policies")
	cmd.MarkFlagsMutuallyExclusive("last-name", "company")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			a.portal.Auth().Logout(cmd.Context())
			printOK(cmd.OutOrStdout(), "Signed out")
			return a.session.PersistError()
		}),
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			out := cmd.OutOrStdout()
			s := a.session.Current()
			if !s.IsAuthenticated() {
				printFaint(out, "Not signed in")
				return nil
			}

			printHeader(out, "%s", a.session.Home())
			if s.IsStaff() {
				printOK(out, "Staff %s (%s)", s.Email, s.Role)
			} else {
				printOK(out, "Policyholder of %s", s.PolicyNumber)
			}
			printFaint(out, "Tenant: %s", s.TenantID)
			printFaint(out, "Token: %s", s.MaskedToken())
			if exp, ok := s.TokenExpiry(); ok {
				printFaint(out, "Token expires: %s", exp.Local().Format(time.RFC1123))
			}
			return nil
		}),
	}
}
