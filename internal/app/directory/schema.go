// internal/app/directory/schema.go
package directory

// Object classes.
const (
	ClassInstitution      = "ENTEtablissement"
	ClassStudent          = "ENTEleve"
	ClassTeacher          = "ENTAuxEnseignant"
	ClassStaffInstitution = "ENTAuxNonEnsEtab"
	ClassStaffLocal       = "ENTAuxNonEnsCollLoc"
)

// Attributes.
const (
	AttrObjectClass     = "objectClass"
	AttrModifyTimestamp = "modifyTimestamp"

	AttrStructureCode = "ENTStructureUAI"
	AttrStructureName = "ENTStructureNomCourant"
	AttrStructureType = "ENTStructureTypeStruct"
	AttrDepartment    = "ESCODepartement"
	AttrDomains       = "ESCODomaines"

	AttrUID             = "uid"
	AttrGivenName       = "givenName"
	AttrFamilyName      = "sn"
	AttrMail            = "mail"
	AttrHomeInstitution = "ESCOUAICourant"
	AttrInstitutions    = "ESCOUAI"
	AttrProfiles        = "ENTPersonProfils"
	AttrMemberOf        = "isMemberOf"
	AttrStudentClasses  = "ENTEleveClasses"
	AttrTeacherClasses  = "ENTAuxEnsClasses"
	AttrTrainingLevel   = "ENTEleveNivFormation"
)

// ClassSeparator splits "<structure>$<class>" values.
const ClassSeparator = "$"

var institutionAttributes = []string{
	AttrStructureCode,
	AttrStructureName,
	AttrStructureType,
	AttrDepartment,
	AttrDomains,
	AttrModifyTimestamp,
}

var personAttributes = []string{
	AttrObjectClass,
	AttrUID,
	AttrGivenName,
	AttrFamilyName,
	AttrMail,
	AttrHomeInstitution,
	AttrInstitutions,
	AttrProfiles,
	AttrMemberOf,
	AttrStudentClasses,
	AttrTeacherClasses,
	AttrTrainingLevel,
	AttrDomains,
	AttrModifyTimestamp,
}
