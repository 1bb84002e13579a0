package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
"""Something with a name."""
interface Named {
  name: String!
}

type User implements Named {
  name: String!
  "Login handle."
  handle(upper: Boolean = false): String @deprecated(reason: "use name")
  role: Role!
}

type Bot implements Named {
  name: String!
}

union Actor = User | Bot

enum Role {
  ADMIN
  MEMBER
  GUEST @deprecated
}

input UserFilter {
  name: String
  role: Role
}

scalar Time @specifiedBy(url: "https://example.com/time")

type Query {
  me: User
  actors(filter: UserFilter, first: Int = 10): [Actor!]!
}

type Mutation {
  rename(name: String!): User
}
`

func TestBuildFromSDL(t *testing.T) {
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)

	require.Equal(t, "Query", s.QueryType)
	require.Equal(t, "Mutation", s.MutationType)
	require.Empty(t, s.SubscriptionType)
	require.Nil(t, s.GetSubscriptionType())
	require.NotNil(t, s.Definition)

	for _, name := range []string{"__Schema", "__Type", "__Field"} {
		require.NotContains(t, s.Types, name)
	}
	require.Same(t, stringType, s.Types["String"])

	user := s.Types["User"]
	require.Equal(t, TypeKindObject, user.Kind)
	require.Equal(t, []string{"Named"}, user.Interfaces)
	handle := user.Field("handle")
	require.NotNil(t, handle)
	require.True(t, handle.IsDeprecated)
	require.Equal(t, "use name", handle.DeprecationReason)
	require.Equal(t, "Login handle.", handle.Description)
	require.Equal(t, false, handle.Arguments[0].DefaultValue)

	named := s.Types["Named"]
	require.Equal(t, TypeKindInterface, named.Kind)
	require.Equal(t, []string{"Bot", "User"}, named.PossibleTypes)
	require.True(t, named.IsPossibleType("User"))
	require.False(t, named.IsPossibleType("Query"))

	require.Equal(t, []string{"Bot", "User"}, s.Types["Actor"].PossibleTypes)

	role := s.Types["Role"]
	require.Len(t, role.EnumValues, 3)
	require.True(t, role.EnumValues[2].IsDeprecated)
	require.Equal(t, defaultDeprecationReason, role.EnumValues[2].DeprecationReason)

	require.Equal(t, TypeKindInputObject, s.Types["UserFilter"].Kind)
	require.False(t, s.Types["UserFilter"].OneOf)
	require.NotNil(t, s.Types["Time"].SpecifiedByURL)
	require.Equal(t, "https://example.com/time", *s.Types["Time"].SpecifiedByURL)

	actors := s.GetQueryType().Field("actors")
	require.Equal(t, "[Actor!]!", actors.Type.String())
	require.Equal(t, int64(10), actors.Arguments[1].DefaultValue)

	require.Same(t, includeDirective, s.Directives["include"])
	require.Same(t, deprecatedDirective, s.Directives["deprecated"])
}

func TestBuildFromSDLRejectsInvalidSchema(t *testing.T) {
	_, err := BuildFromSDL(`type Query { a: Missing }`)
	require.Error(t, err)
}

func TestRenderRoundTrip(t *testing.T) {
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)
	first := Render(s)

	again, err := BuildFromSDL(first)
	require.NoError(t, err, "rendered SDL must parse:\n%s", first)
	if diff := cmp.Diff(first, Render(again)); diff != "" {
		t.Fatalf("render is not stable (-first +second):\n%s", diff)
	}
	require.NotContains(t, first, "scalar String")
	require.NotContains(t, first, "directive @include")
	require.Contains(t, first, `handle(upper: Boolean = false): String @deprecated(reason: "use name")`)
	require.Contains(t, first, "GUEST @deprecated\n")
	require.Contains(t, first, "union Actor = Bot | User")
}

func TestTypeRefString(t *testing.T) {
	ref := NonNullType(ListType(NonNullType(NamedType("String"))))
	require.Equal(t, "[String!]!", ref.String())
	require.True(t, ref.IsList())
	require.Equal(t, "String", ref.GetNamedType())
}
