package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlibekovAA/safecheck/internal/common/dto"
	"github.com/AlibekovAA/safecheck/internal/status"
)

func newRegisterCommand() *cobra.Command {
	var req dto.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var err error

			if req.Username, err = a.promptValue(req.Username, "Username"); err != nil {
				return err
			}
			if req.DisplayName, err = a.promptValue(req.DisplayName, "Display name"); err != nil {
				return err
			}
			if req.Password, err = a.password("Password"); err != nil {
				return err
			}
			confirm, err := a.password("Repeat password")
			if err != nil {
				return err
			}
			if confirm != req.Password {
				return errors.New("passwords do not match")
			}

			res, err := a.client.Register(cmd.Context(), a.opts.Session, req)
			if err != nil {
				return friendly(err)
			}
			a.printf("Welcome, %s. Your check-in window is %s.", res.User.DisplayName, status.FormatThreshold(res.User.TimeoutThreshold))
			a.printf("Share this link with family: %s", a.client.ShareURL(res.User.Username))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Username, "username", "", "public username")
	f.StringVar(&req.DisplayName, "display-name", "", "name shown to family members")
	f.StringVar(&req.Contact1Name, "contact1-name", "", "first emergency contact name")
	f.StringVar(&req.Contact1Phone, "contact1-phone", "", "first emergency contact phone")
	f.StringVar(&req.Contact2Name, "contact2-name", "", "second emergency contact name")
	f.StringVar(&req.Contact2Phone, "contact2-phone", "", "second emergency contact phone")
	return cmd
}

func newLoginCommand() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			name, err := a.promptValue(username, "Username")
			if err != nil {
				return err
			}
			password, err := a.password("Password")
			if err != nil {
				return err
			}

			res, err := a.client.Login(cmd.Context(), a.opts.Session, name, password)
			if err != nil {
				return friendly(err)
			}
			a.printf("Signed in as %s (%s).", res.User.Username, res.User.DisplayName)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username to sign in as")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if err := a.client.Logout(cmd.Context(), a.opts.Session); err != nil {
				return err
			}
			a.printf("Signed out.")
			return nil
		},
	}
}

func newProfileCommand() *cobra.Command {
	var displayName, c1Name, c1Phone, c2Name, c2Phone string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your name and emergency contacts",
		Long:  "Without flags, prints the profile. Pass an empty value to clear a contact.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			f := cmd.Flags()

			var req dto.ProfileRequest
			update := false
			set := func(flag string, v *string, dst **string) {
				if f.Changed(flag) {
					*dst = v
					update = true
				}
			}
			set("display-name", &displayName, &req.DisplayName)
			set("contact1-name", &c1Name, &req.Contact1Name)
			set("contact1-phone", &c1Phone, &req.Contact1Phone)
			set("contact2-name", &c2Name, &req.Contact2Name)
			set("contact2-phone", &c2Phone, &req.Contact2Phone)

			var (
				rec dto.OwnerRecord
				err error
			)
			if update {
				rec, err = a.client.UpdateProfile(cmd.Context(), a.opts.Session, req)
			} else {
				rec, err = a.client.GetRecordByIdentity(cmd.Context(), a.opts.Session)
			}
			if err != nil {
				return friendly(err)
			}

			a.printf("Username:     %s", rec.Username)
			a.printf("Display name: %s", rec.DisplayName)
			a.printf("Contact 1:    %s", contact(rec.Contact1Name, rec.Contact1Phone))
			a.printf("Contact 2:    %s", contact(rec.Contact2Name, rec.Contact2Phone))
			a.printf("Window:       %s", status.FormatThreshold(rec.TimeoutThreshold))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&displayName, "display-name", "", "name shown to family members")
	f.StringVar(&c1Name, "contact1-name", "", "first emergency contact name")
	f.StringVar(&c1Phone, "contact1-phone", "", "first emergency contact phone")
	f.StringVar(&c2Name, "contact2-name", "", "second emergency contact name")
	f.StringVar(&c2Phone, "contact2-phone", "", "second emergency contact phone")
	return cmd
}

func contact(name, phone string) string {
	switch {
	case name == "" && phone == "":
		return "-"
	case phone == "":
		return name
	case name == "":
		return phone
	}
	return fmt.Sprintf("%s, %s", name, phone)
}
